// Command scanner is the virtual biopsy demonstrator: it trains the tissue
// segmentation model on a grayscale scan, connects to the haptic controller
// and runs the control loop. Cursor positions arrive on stdin, standing in
// for the presentation layer:
//
//	<x> <y>       move the cursor (working-resolution pixels)
//	mode <NAME>   switch haptic mode (DIRECT, TEXTURE, TUMOR_LOCK, EDGE_DETECT)
//	train <k>     retrain with k clusters
//	status        print the published state
//	quit          exit
//
// Without hardware attached the session runs in demo mode and every other
// part of the system behaves identically.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/haptic-histology/tissue.scanner/internal/config"
	"github.com/haptic-histology/tissue.scanner/internal/haptic"
	"github.com/haptic-histology/tissue.scanner/internal/scanner"
	"github.com/haptic-histology/tissue.scanner/internal/telemetry"
)

var (
	configPath  = flag.String("config", "", "Path to a scanner config JSON file")
	imagePath   = flag.String("image", "data/mri_scan.png", "Path to the grayscale scan image")
	portPath    = flag.String("port", "", "Serial port override")
	telemetryDB = flag.String("telemetry-db", "", "Telemetry SQLite path override (empty disables)")
)

// stdinCursor is the presentation-layer stand-in: a cursor position fed by
// stdin commands.
type stdinCursor struct {
	mu   sync.Mutex
	x, y int
}

func (c *stdinCursor) Position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

func (c *stdinCursor) move(x, y int) {
	c.mu.Lock()
	c.x, c.y = x, y
	c.mu.Unlock()
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func main() {
	flag.Parse()

	cfg := config.EmptyScannerConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadScannerConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	port := cfg.GetSerialPort()
	if *portPath != "" {
		port = *portPath
	}

	img, err := loadImage(*imagePath)
	if err != nil {
		log.Fatalf("failed to load scan image %s: %v", *imagePath, err)
	}

	var store *telemetry.Store
	dbPath := cfg.GetTelemetryDB()
	if *telemetryDB != "" {
		dbPath = *telemetryDB
	}
	if dbPath != "" {
		store, err = telemetry.Open(dbPath)
		if err != nil {
			log.Fatalf("failed to open telemetry db: %v", err)
		}
		defer store.Close()
	}

	session := haptic.NewSession(haptic.SessionParams{
		PortPath:         port,
		BaudRate:         cfg.GetBaudRate(),
		SendInterval:     cfg.GetSendInterval(),
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
	})

	cursor := &stdinCursor{x: -1, y: -1} // start outside the scan
	sc := scanner.New(scanner.Params{
		Session:       session,
		Cursor:        cursor,
		Telemetry:     store,
		TargetFPS:     cfg.GetTargetFPS(),
		WorkingSize:   cfg.GetWorkingSize(),
		KMeansRounds:  cfg.GetKMeansRounds(),
		DensityBands:  cfg.GetDensityBands(),
		EdgeThreshold: cfg.GetEdgeThreshold(),
	})
	// Every exit path below runs through this close, which guarantees the
	// actuator ends at zero density.
	defer func() {
		if err := sc.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := sc.Train(img, cfg.GetClusterCount()); err != nil {
		log.Fatalf("failed to train segmentation model: %v", err)
	}

	session.Connect()
	sc.SetMode(haptic.Mode(cfg.GetHapticMode()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readCommands(os.Stdin, sc, cursor, cfg.GetTumorThreshold(), stop)

	w, h := sc.MapBounds()
	log.Printf("scanner ready: %dx%d map, mode %s, transport %s", w, h, sc.CurrentMode(), session.State())

	if err := sc.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("control loop stopped: %v", err)
	}
}

// readCommands parses presentation commands from r until EOF or quit, then
// cancels the control loop.
func readCommands(r *os.File, sc *scanner.Scanner, cursor *stdinCursor, tumorThreshold int, stop func()) {
	defer stop()
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		fields := strings.Fields(scan.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "mode":
			if len(fields) != 2 {
				fmt.Println("usage: mode <NAME>")
				continue
			}
			sc.SetMode(haptic.Mode(fields[1]))
			fmt.Printf("mode set to %s\n", fields[1])
		case "train":
			if len(fields) != 2 {
				fmt.Println("usage: train <clusters>")
				continue
			}
			k, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Printf("bad cluster count %q\n", fields[1])
				continue
			}
			img, err := loadImage(*imagePath)
			if err != nil {
				fmt.Printf("reload failed: %v\n", err)
				continue
			}
			if err := sc.Train(img, k); err != nil {
				fmt.Printf("train failed: %v\n", err)
				continue
			}
			fmt.Printf("retrained with %d clusters\n", k)
		case "status":
			d := sc.CurrentDensity()
			marker := ""
			if d > tumorThreshold {
				marker = " [dense/tumor]"
			}
			fmt.Printf("density=%d%s mode=%s\n", d, marker, sc.CurrentMode())
		default:
			if len(fields) != 2 {
				fmt.Println("commands: <x> <y> | mode <NAME> | train <k> | status | quit")
				continue
			}
			x, errX := strconv.Atoi(fields[0])
			y, errY := strconv.Atoi(fields[1])
			if errX != nil || errY != nil {
				fmt.Println("commands: <x> <y> | mode <NAME> | train <k> | status | quit")
				continue
			}
			cursor.move(x, y)
		}
	}
}
