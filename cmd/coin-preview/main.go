// Command coin-preview is the desktop host for the coin relief preview
// session: a pannable, zoomable viewport with placement and processing
// controls, plus an action that sends the finalized heightmap to the mesh
// generation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	coinpreview "github.com/mintforge/coin-preview"
	"github.com/mintforge/coin-preview/internal/config"
	"github.com/mintforge/coin-preview/pkg/generation"
	"github.com/mintforge/coin-preview/pkg/geometry"
	"github.com/mintforge/coin-preview/pkg/meshhttp"
	"github.com/mintforge/coin-preview/pkg/pipeline"
	"github.com/mintforge/coin-preview/pkg/render"
	"github.com/mintforge/coin-preview/pkg/schedule"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (default: ~/.config/coin-preview/config.json)")
		imagePath  = flag.String("image", "", "heightmap image to load at startup")
		serverURL  = flag.String("server", "", "mesh generation server URL (overrides config)")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *serverURL != "" {
		cfg.API.BaseURL = *serverURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	session := coinpreview.NewWithConfig(coinpreview.Config{
		Renderer: render.Config{
			PixelsPerMM:      cfg.Viewport.PixelsPerMM,
			DevicePixelRatio: cfg.Viewport.DevicePixelRatio,
			Shape:            shapeFromConfig(cfg.Viewport.DefaultShape, cfg.Viewport.DefaultCoinMM),
			Logger:           logger,
		},
		Scheduler: schedule.Config{
			MaxWorkers:     cfg.Scheduler.MaxWorkers,
			MinFPS:         cfg.Scheduler.MinFPS,
			MaxFPS:         cfg.Scheduler.MaxFPS,
			InitialFPS:     cfg.Scheduler.InitialFPS,
			PreviewMaxSide: cfg.Pipeline.PreviewMaxSide,
			Logger:         logger,
		},
	})
	defer session.Close()

	ui := newUI(session, cfg, logger)
	if *imagePath != "" {
		if err := session.LoadHeightmap(*imagePath); err != nil {
			log.Fatalf("Failed to load %s: %v", *imagePath, err)
		}
	}
	ui.run()
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return config.Default()
	}
	return cfg
}

func shapeFromConfig(name string, sizeMM float64) geometry.Shape {
	switch name {
	case "square":
		return geometry.Square{SideMM: sizeMM}
	case "hexagon":
		return geometry.Hexagon{DiameterMM: sizeMM}
	case "octagon":
		return geometry.Octagon{DiameterMM: sizeMM}
	default:
		return geometry.Circle{DiameterMM: sizeMM}
	}
}

// viewport is the interactive canvas: drag pans, the wheel zooms about the
// cursor.
type viewport struct {
	widget.BaseWidget
	session *coinpreview.Session
	raster  *fynecanvas.Raster
}

func newViewport(session *coinpreview.Session) *viewport {
	v := &viewport{session: session}
	v.raster = fynecanvas.NewRaster(func(w, h int) image.Image {
		session.Resize(float64(w), float64(h))
		return session.Render(w, h)
	})
	v.ExtendBaseWidget(v)
	return v
}

func (v *viewport) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.raster)
}

func (v *viewport) MinSize() fyne.Size {
	return fyne.NewSize(480, 360)
}

func (v *viewport) Dragged(ev *fyne.DragEvent) {
	v.session.Pan(float64(ev.Dragged.DX), float64(ev.Dragged.DY))
	v.raster.Refresh()
}

func (v *viewport) DragEnd() {}

func (v *viewport) Scrolled(ev *fyne.ScrollEvent) {
	notches := 1
	if ev.Scrolled.DY < 0 {
		notches = -1
	}
	v.session.ZoomAt(float64(ev.Position.X), float64(ev.Position.Y), notches)
	v.raster.Refresh()
}

type ui struct {
	session *coinpreview.Session
	cfg     *config.Config
	log     *slog.Logger

	app    fyne.App
	window fyne.Window
	view   *viewport
	status *widget.Label

	// Drag bracketing for slider interactions.
	sliderDragging bool
}

func newUI(session *coinpreview.Session, cfg *config.Config, logger *slog.Logger) *ui {
	u := &ui{
		session: session,
		cfg:     cfg,
		log:     logger,
		app:     app.New(),
		status:  widget.NewLabel("zoom 1.00"),
	}
	u.window = u.app.NewWindow("Coin Preview")
	u.view = newViewport(session)

	session.OnInvalidate(func(st coinpreview.Status) {
		u.status.SetText(fmt.Sprintf("zoom %.2f  pan (%.0f, %.0f)  %.1f jobs/s  %s",
			st.Zoom, st.PanX, st.PanY, st.FPS, tierLabel(st)))
		u.view.raster.Refresh()
	})
	session.OnError(func(err error) {
		u.log.Warn("recompute failed", "error", err)
	})

	u.window.SetContent(container.NewBorder(nil, u.status, nil, u.controls(), u.view))
	u.window.Resize(fyne.NewSize(1100, 760))
	return u
}

func tierLabel(st coinpreview.Status) string {
	if !st.HasImage {
		return "no image"
	}
	return st.Tier.String()
}

// controls builds the right-hand parameter panel.
func (u *ui) controls() fyne.CanvasObject {
	shapeSelect := widget.NewSelect([]string{"circle", "square", "hexagon", "octagon"}, nil)
	shapeSelect.SetSelected(u.cfg.Viewport.DefaultShape)
	sizeSlider := widget.NewSlider(10, 60)
	sizeSlider.SetValue(u.cfg.Viewport.DefaultCoinMM)
	applyShape := func() {
		u.session.SetShape(shapeFromConfig(shapeSelect.Selected, sizeSlider.Value))
	}
	shapeSelect.OnChanged = func(string) { applyShape() }
	sizeSlider.OnChanged = func(float64) { applyShape() }

	scale := u.placementSlider(10, 200, 100)
	offsetX := u.placementSlider(-100, 100, 0)
	offsetY := u.placementSlider(-100, 100, 0)
	rotation := u.placementSlider(-180, 180, 0)
	applyPlacement := func() {
		u.session.SetPlacement(geometry.Placement{
			ScalePercent:    scale.Value,
			OffsetXPercent:  offsetX.Value,
			OffsetYPercent:  offsetY.Value,
			RotationDegrees: rotation.Value,
		})
	}
	for _, s := range []*widget.Slider{scale, offsetX, offsetY, rotation} {
		s.OnChanged = func(float64) { applyPlacement() }
	}

	graySelect := widget.NewSelect([]string{"luminosity", "average", "lightness"}, nil)
	graySelect.SetSelected("luminosity")
	brightness := u.processingSlider(-100, 100, 0)
	contrast := u.processingSlider(-100, 100, 0)
	gamma := u.processingSlider(0.2, 2.9, 1.0)
	gamma.Step = 0.05
	invert := widget.NewCheck("Invert", nil)

	applyProcessing := func() {
		method, err := pipeline.ParseMethod(graySelect.Selected)
		if err != nil {
			method = pipeline.Luminosity
		}
		p := pipeline.Params{
			Grayscale:  method,
			Brightness: int(brightness.Value),
			Contrast:   int(contrast.Value),
			Gamma:      gamma.Value,
			Invert:     invert.Checked,
		}
		if err := u.session.SetProcessing(p); err != nil {
			u.log.Warn("rejected processing parameters", "error", err)
		}
	}
	graySelect.OnChanged = func(string) { applyProcessing() }
	invert.OnChanged = func(bool) { applyProcessing() }
	for _, s := range []*widget.Slider{brightness, contrast, gamma} {
		s.OnChanged = func(float64) {
			if !u.sliderDragging {
				u.sliderDragging = true
				u.session.BeginDrag()
			}
			applyProcessing()
		}
		s.OnChangeEnded = func(float64) {
			applyProcessing()
			if u.sliderDragging {
				u.sliderDragging = false
			}
			u.session.EndDrag()
		}
	}

	resetBtn := widget.NewButton("Reset view", func() {
		size := u.view.Size()
		u.session.ResetView(float64(size.Width), float64(size.Height))
		u.view.raster.Refresh()
	})
	exportBtn := widget.NewButton("Export processed", u.exportProcessed)
	generateBtn := widget.NewButton("Generate mesh", u.generateMesh)

	return container.NewVBox(
		widget.NewLabel("Coin"),
		shapeSelect, sizeSlider,
		widget.NewLabel("Placement"),
		scale, offsetX, offsetY, rotation,
		widget.NewLabel("Processing"),
		graySelect, brightness, contrast, gamma, invert,
		resetBtn, exportBtn, generateBtn,
	)
}

func (u *ui) placementSlider(min, max, value float64) *widget.Slider {
	s := widget.NewSlider(min, max)
	s.SetValue(value)
	return s
}

func (u *ui) processingSlider(min, max, value float64) *widget.Slider {
	s := widget.NewSlider(min, max)
	s.SetValue(value)
	return s
}

func (u *ui) exportProcessed() {
	path := fmt.Sprintf("coin-heightmap-%d.png", time.Now().Unix())
	if err := u.session.SaveProcessed(path, u.cfg.Pipeline.SaveQuality); err != nil {
		u.log.Warn("export failed", "error", err)
		return
	}
	u.log.Info("processed heightmap exported", "path", path)
}

func (u *ui) generateMesh() {
	client, err := meshhttp.NewClientWithHTTP(u.cfg.API.BaseURL, &http.Client{
		Timeout: time.Duration(u.cfg.API.RequestTimeoutSec) * time.Second,
	})
	if err != nil {
		u.log.Warn("mesh client setup failed", "error", err)
		return
	}
	orch := generation.NewWithConfig(client, generation.Config{
		PollInterval: time.Duration(u.cfg.API.PollIntervalMs) * time.Millisecond,
		MaxAttempts:  u.cfg.API.MaxPollAttempts,
		Logger:       u.log,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(u.cfg.API.MaxPollAttempts)*time.Duration(u.cfg.API.PollIntervalMs)*time.Millisecond+time.Minute)
		defer cancel()

		data, err := u.session.GenerateMesh(ctx, orch,
			u.cfg.API.CoinThicknessMM, u.cfg.API.CoinReliefDepthMM,
			func(p generation.Progress) {
				u.log.Info("generation progress", "state", string(p.State), "progress", p.Progress, "step", p.Step)
			})
		if err != nil {
			u.log.Warn("mesh generation failed", "error", err)
			return
		}
		path := fmt.Sprintf("coin-mesh-%d.stl", time.Now().Unix())
		if err := os.WriteFile(path, data, 0644); err != nil {
			u.log.Warn("failed to write mesh", "error", err)
			return
		}
		u.log.Info("mesh saved", "path", path, "bytes", len(data))
	}()
}

func (u *ui) run() {
	u.window.ShowAndRun()
}
