package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etcdadm/etcdadm-agent/pkg/buildinfo"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "etcdadm-agent version",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.Marshal(map[string]string{
				"version": buildinfo.Version,
				"gitSHA":  buildinfo.GitSHA,
				"date":    buildinfo.Date,
				"go":      buildinfo.GoVersion,
			})
			if err != nil {
				log.Fatal(err.Error())
			}
			fmt.Printf("%s\n", data)
		},
	}
}
