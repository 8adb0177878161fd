package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vnvoice-dev/govoxsync/src/internal/backup"
	"github.com/vnvoice-dev/govoxsync/src/internal/config"
	"github.com/vnvoice-dev/govoxsync/src/internal/integrity"
	"github.com/vnvoice-dev/govoxsync/src/internal/poller"
	"github.com/vnvoice-dev/govoxsync/src/internal/remote"
	"github.com/vnvoice-dev/govoxsync/src/internal/secrets"
	"github.com/vnvoice-dev/govoxsync/src/internal/tray"
	"github.com/vnvoice-dev/govoxsync/src/internal/update"
	"github.com/vnvoice-dev/govoxsync/src/internal/version"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	logPath    = flag.String("log", "govoxsync.log", "Path to log file")
	useTray    = flag.Bool("tray", true, "Show the system tray icon")
)

// staleStagingAge is how long leftover staged downloads survive before
// startup cleanup removes them.
const staleStagingAge = 7 * 24 * time.Hour

func main() {
	flag.Parse()

	// Environment overrides (GITHUB_TOKEN etc.) may come from a .env file
	_ = godotenv.Load()

	// Setup log file
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	// Log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Paths.BinaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			log.Fatalf("Failed to locate own binary: %v", err)
		}
		cfg.Paths.BinaryPath = exe
	}

	log.Printf("govoxsync starting...")
	log.Printf("Release feed: %s, model manifest: %s", cfg.Release.Repository, cfg.Models.ManifestURL)

	cleanStaleStaging(cfg.Paths.StagingDir)

	store, err := version.NewStore(cfg.Paths.StateFile)
	if err != nil {
		log.Fatalf("Failed to open installed-state store: %v", err)
	}
	vault, err := backup.NewVault(cfg.Backup.Dir)
	if err != nil {
		log.Fatalf("Failed to open backup vault: %v", err)
	}
	verifier := integrity.NewVerifier()
	client := remote.NewClient(cfg)

	var decryptor secrets.Decryptor
	if cfg.Models.KeyPath != "" {
		decryptor, err = secrets.NewFileKeyDecryptor(cfg.Models.KeyPath)
		if err != nil {
			log.Fatalf("Failed to load model key: %v", err)
		}
	}

	sched := poller.NewScheduler(cfg.Check.StartupDelay)

	appTrack := update.NewAppTrack(client, verifier, cfg.Paths.BinaryPath, cfg.Paths.StagingDir)
	modelTrack := update.NewModelTrack(client, verifier, decryptor, cfg.Models.Dir, cfg.Paths.StagingDir)

	sched.Register(update.NewOrchestrator(appTrack, store, vault, cfg.Backup.Retention, sched.Notify), cfg.Check.AppInterval)
	sched.Register(update.NewOrchestrator(modelTrack, store, vault, cfg.Backup.Retention, sched.Notify), cfg.Check.ModelInterval)

	sched.Start()

	go consumeEvents(sched)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *useTray {
		go func() {
			<-sigCh
			tray.Quit()
		}()
		tray.Run(sched, func() {
			sched.Stop()
			log.Printf("govoxsync stopped")
		})
		return
	}

	<-sigCh
	sched.Stop()
	log.Printf("govoxsync stopped")
}

// consumeEvents forwards engine events to the tray tooltip and surfaces
// the one severe condition prominently in the log.
func consumeEvents(sched *poller.Scheduler) {
	for ev := range sched.Events() {
		if *useTray {
			tray.SetStatus(ev)
		}
		if ev.Severe {
			log.Printf("[Alert] %s update failed and rollback did not restore the previous version; manual intervention required: %v", ev.Kind, ev.Err)
		}
	}
}

// cleanStaleStaging removes downloads abandoned by interrupted cycles.
func cleanStaleStaging(stagingDir string) {
	cutoff := time.Now().Add(-staleStagingAge)

	for _, kind := range []models.Kind{models.KindApplication, models.KindModelSet} {
		dir := filepath.Join(stagingDir, string(kind))
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			log.Printf("Removing stale staging %s", path)
			os.RemoveAll(path)
		}
	}
}
