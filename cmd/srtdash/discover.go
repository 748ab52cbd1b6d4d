package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoSRT/internal/config"
	"github.com/rjboer/GoSRT/internal/mdns"
)

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	var (
		service string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List telescope publishers advertised over mDNS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("service") {
					c.Discovery.Service = service
				}
				if cmd.Flags().Changed("timeout") {
					c.Discovery.Timeout = timeout
				}
			})
			if err != nil {
				return err
			}
			hosts, err := mdns.Discover(cmd.Context(), cfg.Discovery.Service, cfg.Discovery.Timeout)
			if err != nil {
				return err
			}
			printHosts(cmd.OutOrStdout(), hosts)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "_srt._tcp", "mDNS service type to browse")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to browse")
	return cmd
}

func printHosts(w io.Writer, hosts []mdns.Host) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "no publishers found")
		return
	}
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s:%d\t%s\n", h.Instance, h.Addr(), h.Port, strings.Join(h.TXT, ","))
	}
}
