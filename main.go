package main

import (
	"os"

	"github.com/voxelbrain/goptions"
)

// runStage validates the shared flags and runs one pipeline stage, logging
// its counter report on success.
func runStage(name string, opt stageConfig, fn func(stageConfig) (*report, error)) *report {
	if opt.File == "" {
		sugar.Fatal("an alignment file is mandatory. Please, provide one (-f|--file)")
	}
	rep, err := fn(opt)
	if err != nil {
		sugar.Fatalf("%s failed: %v", name, err)
	}
	rep.log(name)
	return rep
}

func main() {
	conf = defaultConfig()
	goptions.ParseAndFail(&conf)

	setLogger(conf.Debug, conf.Log)

	if conf.Version {
		sugar.Infof("current version: %v", VERSION)
		os.Exit(0)
	}

	timer := InitTimer()
	timer.Tic()

	switch conf.Verbs {
	case "build-read-db":
		runStage("build-read-db", conf.BuildReadDB, runBuildReadDB)
	case "build-location-db":
		runStage("build-location-db", conf.BuildLocationDB, runBuildLocationDB)
	case "build-dup-db":
		opt := conf.BuildDupDB
		rep := runStage("build-dup-db", opt, runBuildDupDB)
		if err := runWriteSAMOutputs(opt); err != nil {
			sugar.Fatalf("build-dup-db failed: %v", err)
		}
		if err := writeSummary(opt, rep); err != nil {
			sugar.Fatalf("build-dup-db failed: %v", err)
		}
	case "dedup":
		opt := conf.Dedup
		rep := runStage("build-read-db", opt, runBuildReadDB)
		rep.merge(runStage("build-location-db", opt, runBuildLocationDB))
		rep.merge(runStage("build-dup-db", opt, runBuildDupDB))
		if err := runWriteSAMOutputs(opt); err != nil {
			sugar.Fatalf("dedup failed: %v", err)
		}
		if err := writeSummary(opt, rep); err != nil {
			sugar.Fatalf("dedup failed: %v", err)
		}
	default:
		goptions.PrintHelp()
		os.Exit(2)
	}

	timer.Toc()
	sugar.Info(timer.TicToc())
}
