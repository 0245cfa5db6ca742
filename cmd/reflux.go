/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/notargets/fluxreg/InputParameters"
	"github.com/notargets/fluxreg/model_problems/Advection2D"
	"github.com/notargets/fluxreg/utils"
)

// RefluxCmd represents the reflux command
var RefluxCmd = &cobra.Command{
	Use:   "reflux",
	Short: "Two level advection with flux register correction",
	Long: `
Advects a Gaussian pulse across a coarse level with refined patches, optionally
around a cylinder, and reports the composite mass before and after the run.

fluxreg reflux -I input.yaml -n 4`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip *InputParameters.AMRParameters
			s  Advection2D.Summary
		)
		if ip, err = loadInput(Cfg.GetString("inputConditionsFile")); err != nil {
			return
		}
		if err = applyOverrides(ip); err != nil {
			return
		}
		ip.Print()
		switch Cfg.GetString("profile") {
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
		case "":
		default:
			return fmt.Errorf("unknown profile %q, use cpu or mem", Cfg.GetString("profile"))
		}
		run := func() (err error) {
			s, err = Advection2D.RunParallel(ip, logrus.StandardLogger())
			return
		}
		if Cfg.GetBool("perf") {
			var n uint64
			if n, err = countInstructions(run); err != nil {
				return
			}
			fmt.Printf("%d\t\t= CPU Instructions\n", n)
		} else if err = run(); err != nil {
			return
		}
		printSummary(s)
		return
	},
}

func loadInput(fileName string) (ip *InputParameters.AMRParameters, err error) {
	ip = InputParameters.NewAMRParameters()
	if fileName == "" {
		exampleFile := `
########################################
Title: "Pulse past a cylinder"
CoarseCells: [32, 32]
FineBoxes:
  - [8, 8, 19, 23]
RefRatio: 2
Velocity: [1.0, 0.5]
CFL: 0.5
FinalTime: 0.25
Obstacle:
  Center: [0.6, 0.5]
  Radius: 0.1
########################################
`
		fmt.Printf("no input file (-I, --inputConditionsFile), running defaults. Example File:%s\n", exampleFile)
		return
	}
	var data []byte
	if data, err = os.ReadFile(fileName); err != nil {
		return nil, err
	}
	if err = ip.Parse(data); err != nil {
		return nil, err
	}
	return
}

// applyOverrides lays the command line and environment settings over the input file
func applyOverrides(ip *InputParameters.AMRParameters) (err error) {
	var n int
	if n, err = cast.ToIntE(Cfg.Get("ranks")); err != nil {
		return fmt.Errorf("ranks: %w", err)
	}
	if n > 0 {
		ip.NumRanks = n
	}
	if ex := cast.ToString(Cfg.Get("executor")); ex != "" {
		ip.Executor = ex
	}
	var noReflux bool
	if noReflux, err = cast.ToBoolE(Cfg.Get("noReflux")); err != nil {
		return fmt.Errorf("noReflux: %w", err)
	}
	ip.NoReflux = ip.NoReflux || noReflux
	return ip.Validate()
}

func printSummary(s Advection2D.Summary) {
	fmt.Printf("[%d]\t\t\t\t= Steps\n", s.Steps)
	fmt.Printf("%8.5f\t\t= Time\n", s.Time)
	fmt.Printf("[%d/%d]\t\t\t= Boxes, coarse/fine\n", s.CrseBoxes, s.FineBoxes)
	fmt.Printf("[%d/%d]\t\t= Cells, coarse/fine\n", s.CoarseCells, s.FineCells)
	fmt.Printf("%.15e\t= Initial Mass\n", s.InitialMass)
	fmt.Printf("%.15e\t= Final Mass\n", s.FinalMass)
	fmt.Printf("%.3e\t\t= Relative Change\n", s.RelativeMassChange)
	fmt.Printf("%v\t\t= Elapsed, %s\n", s.ElapsedTime, utils.GetMemUsage())
}
