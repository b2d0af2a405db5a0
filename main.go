package main

import (
	"context"

	"github.com/drone/drone-test-summary/plugin"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	var args plugin.Args
	if err := envconfig.Process("", &args); err != nil {
		logrus.Fatalln(err)
	}
	logrus.SetLevel(plugin.ParseLevel(args.Level))

	if err := plugin.ValidateInputs(args); err != nil {
		logrus.Fatalln(err)
	}

	if err := plugin.Exec(context.Background(), args); err != nil {
		logrus.Fatalln(err)
	}
}
