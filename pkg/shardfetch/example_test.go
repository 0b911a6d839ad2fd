// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

func ExampleDownload() {
	dir, _ := os.MkdirTemp("", "shardfetch-example")
	defer os.RemoveAll(dir)

	job := shardfetch.Job{
		BaseURL:   "https://example.test/weights",
		OutputDir: dir,
		Files:     shardfetch.ShardFiles("params_shard_%d.bin", 3),
	}

	cfg := shardfetch.DefaultSettings()
	cfg.RetryDelay = "0s"
	// Stub transport; in real use leave Fetcher nil to fetch over HTTP.
	cfg.Fetcher = shardfetch.FetcherFunc(func(ctx context.Context, url string) (io.ReadCloser, int64, error) {
		return io.NopCloser(strings.NewReader("weights")), 7, nil
	})

	sum, err := shardfetch.Download(context.Background(), job, cfg, nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("downloaded %d, skipped %d, failed %d, exit %d\n", sum.Succeeded, sum.Skipped, sum.Failed, sum.ExitCode())

	// A second run finds everything present.
	sum, _ = shardfetch.Download(context.Background(), job, cfg, nil)
	fmt.Printf("downloaded %d, skipped %d, failed %d, exit %d\n", sum.Succeeded, sum.Skipped, sum.Failed, sum.ExitCode())

	// Output:
	// downloaded 3, skipped 0, failed 0, exit 0
	// downloaded 0, skipped 3, failed 0, exit 0
}

func ExampleShardFiles() {
	for _, f := range shardfetch.ShardFiles("params_shard_%d.bin", 3) {
		fmt.Println(f.Name)
	}
	// Output:
	// params_shard_0.bin
	// params_shard_1.bin
	// params_shard_2.bin
}

func ExampleIsValidName() {
	fmt.Println(shardfetch.IsValidName("params_shard_0.bin"))
	fmt.Println(shardfetch.IsValidName("sub/tokenizer.json"))
	fmt.Println(shardfetch.IsValidName("../escape.bin"))
	fmt.Println(shardfetch.IsValidName("/abs.bin"))
	// Output:
	// true
	// true
	// false
	// false
}
