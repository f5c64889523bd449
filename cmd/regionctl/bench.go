package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgrid/pkg/node"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
)

// benchCmd drives put+get pairs against one region, e.g. to watch listener
// overhead before and after an alteration.
func benchCmd(c *cli) *cobra.Command {
	var (
		regionName string
		n, conc    int
		valSize    int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Generate entry load against a region on the member given by --addr",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := "http://" + node.NormalizeHostPort(c.addr, "8080") + "/kv/" + url.PathEscape(region.Normalize(regionName)) + "/"
			client := &http.Client{Timeout: 5 * time.Second}
			var failed atomic.Int64

			var g errgroup.Group
			g.SetLimit(conc)
			start := time.Now()
			for i := range n {
				g.Go(func() error {
					key := fmt.Sprintf("k%d", i)
					payload := bytes.Repeat([]byte{byte(rand.Intn(255))}, valSize)
					resp, err := client.Post(base+key, "application/octet-stream", bytes.NewReader(payload))
					if err != nil || resp.StatusCode/100 != 2 {
						failed.Add(1)
					}
					drain(resp)
					resp, err = client.Get(base + key)
					if err != nil || resp.StatusCode/100 != 2 {
						failed.Add(1)
					}
					drain(resp)
					return nil
				})
			}
			_ = g.Wait()
			dur := time.Since(start)
			fmt.Printf("Completed %d ops in %s (%.2f ops/s), %d failed\n", n*2, dur, float64(n*2)/dur.Seconds(), failed.Load())
			return nil
		},
	}
	cmd.Flags().StringVar(&regionName, "region", "", "region to load")
	cmd.Flags().IntVarP(&n, "requests", "n", 5000, "put+get pairs")
	cmd.Flags().IntVarP(&conc, "concurrency", "c", 32, "concurrent pairs")
	cmd.Flags().IntVar(&valSize, "val", 128, "value size bytes")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}

func drain(resp *http.Response) {
	if resp == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
