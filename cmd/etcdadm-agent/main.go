package main

import (
	"github.com/etcdadm/etcdadm-agent/cmd/etcdadm-agent/app"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
