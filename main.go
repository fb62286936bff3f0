package main

import (
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/cmd"
	_ "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
