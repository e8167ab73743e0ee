package main

import (
	"github.com/tanpawarit/Chative-Farm-Advisor/cmd"
	_ "github.com/tanpawarit/Chative-Farm-Advisor/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
