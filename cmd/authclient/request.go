package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) requestCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Send an authenticated request and print the response body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, c.log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			var body []byte
			if data != "" {
				body = []byte(data)
			}
			resp, err := a.Client.Raw(cmd.Context(), strings.ToUpper(args[0]), args[1], body, http.Header{})
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			_, _ = out.Write(bytes.TrimRight(resp.Body, "\n"))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

// describe renders a classified failure for the terminal.
func describe(err error) error {
	apiErr, ok := apierror.As(err)
	if !ok {
		return err
	}
	msg := fmt.Sprintf("%s: %s", apiErr.Name(), apiErr.Message)
	if apiErr.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, apiErr.StatusCode)
	}
	for field, problems := range apiErr.FieldErrors {
		msg += fmt.Sprintf("\n  %s: %s", field, strings.Join(problems, "; "))
	}
	if apiErr.RetryAfter != nil {
		msg += fmt.Sprintf("\n  retry after %d seconds", *apiErr.RetryAfter)
	}
	return errors.New(msg)
}
