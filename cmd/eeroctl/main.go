// Command eeroctl logs in to the eero cloud service and issues raw requests.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd(logrus.StandardLogger()).Execute(); err != nil {
		os.Exit(1)
	}
}
