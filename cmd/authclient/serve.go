package main

import (
	"net/http"

	"github.com/dvcrn/authclient/internal/app"
	"github.com/dvcrn/authclient/internal/env"
	"github.com/dvcrn/authclient/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Forward HTTP requests to the API with the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			a, err := app.New(cfg, c.log, app.Options{Registerer: reg})
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = "9879"
				if p, ok := env.Get("PORT"); ok && p != "" {
					port = p
				}
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			mux.Handle("/", server.New(c.log, a.Client, a.Store))

			c.log.Info().Str("port", port).Msg("Starting server")
			return http.ListenAndServe(":"+port, mux)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port; defaults to PORT or 9879")
	return cmd
}
