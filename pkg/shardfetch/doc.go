// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package shardfetch makes a fixed list of large files (typically model weight
shards) present in a local directory, fetching only what is missing.

# Behavior

  - Sequential: files are processed one at a time, in list order.
  - Idempotent: a file that already exists is skipped, so re-running after a
    partial failure only fetches what is still missing.
  - Atomic: bodies are streamed into "<name>.part" and renamed into place
    only once complete. A failed attempt removes the partial file.
  - Bounded retry: each file gets Settings.Retries extra attempts with a fixed
    delay. A file that exhausts its budget is recorded as Failed and the run
    moves on.
  - Fatal filesystem errors: failing to create, write or rename a local file
    aborts the run.

# Quick Start

	job := shardfetch.DefaultJob()
	sum, err := shardfetch.Download(ctx, job, shardfetch.DefaultSettings(), nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("skipped %d, downloaded %d, failed %d\n", sum.Skipped, sum.Succeeded, sum.Failed)
	os.Exit(sum.ExitCode())

# Manifests

Jobs other than the built-in one are described in YAML or JSON and loaded
with LoadManifest:

	base_url: https://example.com/weights
	output: models/my-model
	files:
	  - tokenizer.json
	shards:
	  pattern: params_shard_%d.bin
	  count: 22

# Transports

Settings.Fetcher selects how bodies are opened. The default is HTTPFetcher;
any type with a Fetch method can be plugged in, which is also how tests stub
the network.
*/
package shardfetch
