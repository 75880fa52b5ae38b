package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/audiowm/internal/audioconv"
	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/wav"
	"github.com/himanishpuri/audiowm/pkg/audiowm"
	"github.com/himanishpuri/audiowm/pkg/logger"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Global flags
var (
	dbPath      string
	workerCount int
)

func init() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("AUDIOWM_DB_PATH", "audiowm.sqlite3"), "Path to the SQLite database file")
	flag.IntVar(&workerCount, "workers", 0, "Worker pool size (0 = runtime.NumCPU())")
}

func getEnvOrDefault(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

func createService() (audiowm.Service, error) {
	return audiowm.NewService(
		audiowm.WithDBPath(dbPath),
		audiowm.WithWorkerCount(workerCount),
	)
}

func main() {
	// Global flags come before the command; subcommands parse their own.
	flag.Parse()
	os.Args = append([]string{os.Args[0]}, flag.Args()...)

	log := logger.GetLogger()

	printBanner()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Infof("executing command: %s", command)

	switch command {
	case "genkey":
		handleGenKey()
	case "add":
		handleAdd()
	case "get":
		handleGet()
	case "cmp":
		handleCmp()
	case "detect-speed":
		handleDetectSpeed()
	case "keys":
		handleKeys()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
            _ _
  __ _ _  _(_) |_____ __ ____ _ __
 / _` + "`" + ` | || | | / _ \ V  V / _` + "`" + ` | '  \
 \__,_|\_,_|_|\__\___/\_/\_/\__,_|_|_|_|

           Watermark Decoder CLI
`
	fmt.Println(banner)
}

func handleGenKey() {
	log := logger.GetLogger()

	if len(os.Args) < 3 {
		fmt.Println("Usage: audiowm genkey <label>")
		os.Exit(1)
	}
	label := os.Args[2]

	raw := make([]byte, key.Size)
	if _, err := rand.Read(raw); err != nil {
		fmt.Printf("failed to generate entropy: %v\n", err)
		os.Exit(1)
	}
	k, err := key.FromBytes(raw)
	if err != nil {
		fmt.Printf("failed to build key: %v\n", err)
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		log.Errorf("service init failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.AddKey(label, k); err != nil {
		fmt.Printf("failed to register key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("registered key %q: %s\n", label, k.String())
}

func handleKeys() {
	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	infos, err := svc.ListKeys()
	if err != nil {
		fmt.Printf("failed to list keys: %v\n", err)
		os.Exit(1)
	}
	if len(infos) == 0 {
		fmt.Println("no keys registered")
		return
	}
	for _, info := range infos {
		fmt.Printf("%-20s %s\n", info.Label, info.Hex)
	}
}

func handleAdd() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: audiowm add <input.wav> --key <label> --out <output.wav>")
		os.Exit(1)
	}
	input := os.Args[2]

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	keyLabel := addCmd.String("key", "", "registered key label (required)")
	output := addCmd.String("out", "", "output WAV path (required)")
	addCmd.Parse(os.Args[3:])

	if *keyLabel == "" || *output == "" {
		fmt.Println("Error: --key and --out are required")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	data, err := readWavFile(input)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	watermarked, err := svc.Add(ctx, data, *keyLabel)
	if err != nil {
		fmt.Printf("add failed: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(*output)
	if err != nil {
		fmt.Printf("failed to create %q: %v\n", *output, err)
		os.Exit(1)
	}
	defer out.Close()

	if err := wav.Write(out, watermarked); err != nil {
		fmt.Printf("failed to write wav: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", *output)
}

// handleGet runs a BLOCK decode over one or more WAV files, showing a
// progress bar when decoding a batch.
func handleGet() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: audiowm get <input.wav...> [--key <label>]")
		os.Exit(1)
	}

	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	keyLabel := getCmd.String("key", "", "key label to try (empty tries all registered keys)")

	paths := collectWavPaths(os.Args[2:])
	getCmd.Parse(os.Args[2+len(paths):])
	if len(paths) == 0 {
		fmt.Println("no .wav files found")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	var labels []string
	if *keyLabel != "" {
		labels = []string{*keyLabel}
	}

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(len(paths)),
		mpb.PrependDecorators(
			decor.Name("decoding: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	ctx := context.Background()
	for _, path := range paths {
		data, err := readWavFile(path)
		if err != nil {
			fmt.Printf("\n%v\n", err)
			bar.Increment()
			continue
		}
		result, err := svc.Get(ctx, data, labels)
		if err != nil {
			fmt.Printf("\n%s: %v\n", path, err)
		} else {
			printDecodeResult(path, result)
		}
		bar.Increment()
	}
	progress.Wait()
}

func handleCmp() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: audiowm cmp <a.wav> <b.wav> [--key <label>]")
		os.Exit(1)
	}
	cmpCmd := flag.NewFlagSet("cmp", flag.ExitOnError)
	keyLabel := cmpCmd.String("key", "", "key label to try (empty tries all registered keys)")
	cmpCmd.Parse(os.Args[4:])

	pathA, pathB := os.Args[2], os.Args[3]

	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	dataA, err := readWavFile(pathA)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	dataB, err := readWavFile(pathB)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	var labels []string
	if *keyLabel != "" {
		labels = []string{*keyLabel}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	same, err := svc.Cmp(ctx, dataA, dataB, labels)
	if err != nil {
		fmt.Printf("cmp failed: %v\n", err)
		os.Exit(1)
	}

	if same {
		fmt.Println("same key detected in both clips")
	} else {
		fmt.Println("no common key detected")
	}
}

func handleDetectSpeed() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: audiowm detect-speed <input.wav> [--key <label>]")
		os.Exit(1)
	}
	speedCmd := flag.NewFlagSet("detect-speed", flag.ExitOnError)
	keyLabel := speedCmd.String("key", "", "key label to try (empty tries all registered keys)")
	speedCmd.Parse(os.Args[3:])

	path := os.Args[2]
	svc, err := createService()
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	data, err := readWavFile(path)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	var labels []string
	if *keyLabel != "" {
		labels = []string{*keyLabel}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := svc.DetectSpeed(ctx, data, labels)
	if err != nil {
		fmt.Printf("detect-speed failed: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no speed drift detected")
		return
	}
	for _, r := range results {
		fmt.Printf("%-20s speed=%.5f\n", r.KeyLabel, r.Speed)
	}
}

// readWavFile reads path as a WAV file, transparently converting it with
// ffmpeg first if its extension suggests it isn't one already.
func readWavFile(path string) (signal.Data, error) {
	if audioconv.NeedsConversion(path) {
		converted, err := audioconv.ToMonoWAV(context.Background(), path, os.TempDir(), audioconv.ConvertConfig{
			SampleRate: params.Default().MarkSampleRate,
		})
		if err != nil {
			return signal.Data{}, fmt.Errorf("convert %q: %w", path, err)
		}
		defer os.Remove(converted)
		path = converted
	}

	f, err := os.Open(path)
	if err != nil {
		return signal.Data{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	data, err := wav.Read(f)
	if err != nil {
		return signal.Data{}, fmt.Errorf("decode %q: %w", path, err)
	}
	return data, nil
}

func printDecodeResult(path string, result audiowm.DecodeResult) {
	if len(result.Candidates) == 0 {
		fmt.Printf("%s: no sync found\n", path)
		return
	}
	best := result.Candidates[0]
	fmt.Printf("%s: key=%s quality=%.4f block=%s frame=%d\n", path, best.KeyLabel, best.Quality, best.BlockType, best.FrameIdx)
}

func collectWavPaths(args []string) []string {
	var paths []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			break
		}
		if strings.EqualFold(filepath.Ext(a), ".wav") {
			paths = append(paths, a)
		}
	}
	return paths
}

func printUsage() {
	fmt.Println("audiowm - watermark decoder CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>       Path to SQLite database (env: AUDIOWM_DB_PATH, default: audiowm.sqlite3)")
	fmt.Println("  --workers <n>     Worker pool size (default: runtime.NumCPU())")
	fmt.Println("\nUsage:")
	fmt.Println("  audiowm genkey <label>")
	fmt.Println("  audiowm keys")
	fmt.Println("  audiowm add <input.wav> --key <label> --out <output.wav>")
	fmt.Println("  audiowm get <input.wav...> [--key <label>]")
	fmt.Println("  audiowm cmp <a.wav> <b.wav> [--key <label>]")
	fmt.Println("  audiowm detect-speed <input.wav> [--key <label>]")
}
