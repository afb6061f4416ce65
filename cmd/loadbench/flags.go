package main

import (
	"flag"
	"time"
)

var trainData = flag.String(
	"train-data",
	"",
	"shard pattern(s) for the training split, comma-separated. brace expansion is supported, e.g. /data/audio-{000000..000127}.tar",
)

var valData = flag.String(
	"val-data",
	"",
	"shard pattern(s) for the evaluation split, comma-separated",
)

var datasetType = flag.String(
	"dataset-type",
	"auto",
	"dataset kind: webdataset, tabular, or auto (detected from the file extension)",
)

var batchSize = flag.Int(
	"batch-size",
	32,
	"per-process batch size",
)

var workers = flag.Int(
	"workers",
	1,
	"data-loading workers per node",
)

var worldSize = flag.Int(
	"world-size",
	1,
	"number of training nodes the run is partitioned across",
)

var rank = flag.Int(
	"rank",
	0,
	"this node's index in [0, world-size)",
)

var seed = flag.Uint64(
	"seed",
	0,
	"run seed for deterministic shuffling and sub-sampling",
)

var sampleRate = flag.Int(
	"samplerate",
	32000,
	"target audio sample rate. 0 keeps each file's native rate",
)

var mono = flag.Bool(
	"mono",
	true,
	"collapse multi-channel audio to one channel",
)

var maxSamples = flag.Int(
	"max-samples",
	1_000_000,
	"fixed waveform length: longer audio is windowed, shorter is zero-padded",
)

var resampleAlgo = flag.String(
	"resample",
	"fourier",
	"resampling algorithm: fourier or linear",
)

var proportion = flag.Float64(
	"proportion",
	0,
	"restrict to an unweighted random subset of shards, drawn once per run. 0 disables",
)

var manifestPath = flag.String(
	"manifest",
	"",
	"explicit sizes.json location. defaults to sizes.json next to the shards",
)

var remote = flag.Bool(
	"remote",
	false,
	"shard paths are http(s) URLs",
)

var trainNumSamples = flag.Int(
	"train-num-samples",
	0,
	"explicit training sample count when no manifest or __len__ file exists",
)

var valNumSamples = flag.Int(
	"val-num-samples",
	0,
	"explicit evaluation sample count. 0 exhausts the stream lazily",
)

var contextLength = flag.Int(
	"context-length",
	77,
	"token sequence length produced by the placeholder tokenizer",
)

var epochs = flag.Int(
	"epochs",
	1,
	"number of epochs to iterate",
)

var reportInterval = flag.Duration(
	"report-interval",
	time.Second*10,
	"how often to print a throughput report",
)

var mysqlDsn = flag.String(
	"mysql-dsn",
	"",
	"MySQL DSN to record run results in (optional)",
)
