package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/air-verse/airenv/runner"
)

var (
	cfgPath     string
	debugMode   bool
	showVersion bool
	cmdArgs     map[string]runner.TomlInfo
)

var (
	airenvVersion = "dev"
	goVersion     = runtime.Version()
)

func helpMessage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n\n", os.Args[0])
	fmt.Printf("If no command is provided %s will start the runner with the provided flags\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Print("  init		creates a .airenv.toml file with default settings to the current directory\n")
	fmt.Print("  example	writes the example env file once and exits\n\n")

	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func init() {
	parseFlag(os.Args[1:])
}

func parseFlag(args []string) {
	flag.Usage = helpMessage
	flag.StringVar(&cfgPath, "c", "", "config path")
	flag.BoolVar(&debugMode, "d", false, "debug mode")
	flag.BoolVar(&showVersion, "v", false, "show version")
	cmdArgs = runner.CreateArgsFlags(flag.CommandLine)
	flag.CommandLine.Parse(args)
}

func main() {
	fmt.Printf(`
airenv v%s // env file injection for your commands, with Go%s

`, airenvVersion, goVersion)

	if showVersion {
		return
	}

	if debugMode {
		fmt.Println("[debug] mode")
	}

	switch flag.Arg(0) {
	case "init":
		writtenPath, err := runner.WriteDefaultConfig()
		if err != nil {
			log.Fatalf("Error writing default config: %v", err)
		}
		fmt.Printf("%s file created to the current directory with the default settings\n", writtenPath)
		return
	case "example":
		r, err := runner.NewEngine(cfgPath, cmdArgs, debugMode)
		if err != nil {
			log.Fatal(err)
		}
		if err := r.GenerateExample(); err != nil {
			os.Exit(1)
		}
		return
	case "":
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	r, err := runner.NewEngine(cfgPath, cmdArgs, debugMode)
	if err != nil {
		log.Fatal(err)
		return
	}
	go func() {
		<-sigs
		r.Stop()
	}()

	defer func() {
		if e := recover(); e != nil {
			log.Fatalf("PANIC: %+v", e)
		}
	}()

	err = r.Run()
	r.Stop()
	if err != nil {
		os.Exit(1)
	}
}
