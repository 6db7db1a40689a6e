package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimaguri/htflow-panel/internal/server"
	"github.com/kimaguri/htflow-panel/internal/ui"
)

const apiTimeout = 3 * time.Second

// serverList is the /api/servers response
type serverList struct {
	Servers []server.Info `json:"servers"`
	Target  string        `json:"target"`
}

func newServersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the preview servers of a running panel host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(opts)
			list, err := fetchServers(cfg.Listen)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Servers(list.Servers, list.Target, time.Now()))
			return nil
		},
	}
}

func fetchServers(addr string) (*serverList, error) {
	client := &http.Client{Timeout: apiTimeout}
	resp, err := client.Get("http://" + addr + "/api/servers")
	if err != nil {
		return nil, fmt.Errorf("panel host not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panel host returned %s", resp.Status)
	}
	var list serverList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	return &list, nil
}
