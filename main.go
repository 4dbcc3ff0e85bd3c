package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"jackpotfx/snd"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	initialWindowW = 640
	initialWindowH = 400
)

var (
	baseURL string
	sfPath  string
	doDebug bool
)

func main() {
	flag.StringVar(&baseURL, "assets", "https://cdn.example.com/casino", "base URL for sound assets")
	flag.StringVar(&sfPath, "soundfont", "soundfont.sf2", "SoundFont used for win jingles")
	flag.BoolVar(&doDebug, "debug", false, "verbose/debug logging")
	flag.Parse()
	setupLogging()

	engine := snd.New(snd.Config{
		BaseURL:   baseURL,
		SoundFont: sfPath,
		PrefsPath: prefsPath(),
		Debug:     doDebug,
	})
	if err := engine.Init(); err != nil {
		log.Printf("audio init: %v (continuing without sound)", err)
	}
	defer engine.Close()

	ebiten.SetWindowSize(initialWindowW, initialWindowH)
	ebiten.SetWindowTitle("JackpotFX Soundboard")
	if err := ebiten.RunGame(newGame(engine)); err != nil {
		log.Fatal(err)
	}
}

func setupLogging() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("could not create log directory: %v", err)
		return
	}
	ts := time.Now().Format("20060102-150405")
	f, err := os.Create(filepath.Join("logs", fmt.Sprintf("audio-%s.log", ts)))
	if err != nil {
		log.Printf("could not create log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
}

func prefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "audio_prefs.json"
	}
	dir = filepath.Join(dir, "jackpotfx")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "audio_prefs.json"
	}
	return filepath.Join(dir, "audio_prefs.json")
}
