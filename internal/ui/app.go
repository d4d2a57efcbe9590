package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"sitesafety/internal/config"
	"sitesafety/internal/safety"
	"sitesafety/internal/ui/cwidget"
	"sitesafety/processing/detector"
	"sitesafety/processing/upload"
)

const (
	appID          = "io.sitesafety.monitor"
	loadTimeout    = 2 * time.Minute
	detectTimeout  = time.Minute
	noObjectsText  = "No objects detected in the image."
	noImageText    = "No image selected"
	countTileWidth = 150
	previewMaxW    = 1280
	previewMaxH    = 960
)

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config    *config.Config
	registry  *detector.Registry
	processor *detector.Processor
	logger    golog.Logger

	current *upload.Image
	pending int

	modelSelect  *widget.Select
	modelStatus  *widget.Label
	confLabel    *widget.Label
	fileLabel    *widget.Label
	detectButton *widget.Button
	progress     *widget.ProgressBarInfinite

	previewCanvas *canvas.Image
	resultCanvas  *canvas.Image
	latencyLabel  *widget.Label
	emptyLabel    *widget.Label
	countsBox     *fyne.Container

	safetyBox       *fyne.Container
	complianceValue *cwidget.Metric
	riskLabel       *widget.Label
	narrativeLabel  *widget.Label
}

func CreateApp(p *detector.Processor, reg *detector.Registry, cfg *config.Config, logger golog.Logger) *DetectApp {
	return newDetectApp(app.NewWithID(appID), p, reg, cfg, logger)
}

func newDetectApp(a fyne.App, p *detector.Processor, reg *detector.Registry, cfg *config.Config, logger golog.Logger) *DetectApp {
	w := a.NewWindow("Construction Safety Monitoring System")
	w.Resize(fyne.NewSize(cfg.Window.Width, cfg.Window.Height))

	return &DetectApp{
		fyneApp:   a,
		mainWin:   w,
		processor: p,
		registry:  reg,
		config:    cfg,
		logger:    logger,
	}
}

func (a *DetectApp) Run() {
	a.mainWin.SetContent(a.build())

	a.mainWin.SetCloseIntercept(func() {
		if err := a.config.SaveByDefault(); err != nil {
			a.logger.Warnw("saving config", "error", err)
		}
		a.mainWin.Close()
	})

	a.modelSelect.SetSelected(a.config.GetActiveModel())

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) build() fyne.CanvasObject {
	a.modelStatus = widget.NewLabel("")
	a.modelSelect = widget.NewSelect(config.ModelsList[:], func(label string) {
		a.config.SetActiveModel(label)
		a.loadModel(label)
	})

	a.confLabel = widget.NewLabel(formatConfidence(a.config.GetConfidence()))
	confSlider := widget.NewSlider(config.MinConfidence, config.MaxConfidence)
	confSlider.Step = 0.05
	confSlider.SetValue(a.config.GetConfidence())
	confSlider.OnChanged = func(v float64) {
		a.config.SetConfidence(v)
		a.confLabel.SetText(formatConfidence(v))
	}

	a.fileLabel = widget.NewLabel(noImageText)
	a.fileLabel.Truncation = fyne.TextTruncateEllipsis
	openButton := widget.NewButtonWithIcon("Upload Image", theme.FolderOpenIcon(), a.openImage)

	a.detectButton = widget.NewButtonWithIcon("Detect Objects", theme.SearchIcon(), a.detect)
	a.detectButton.Importance = widget.HighImportance
	a.detectButton.Disable()

	a.progress = widget.NewProgressBarInfinite()
	a.progress.Stop()
	a.progress.Hide()

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		widget.NewLabel("Select Usecase:"),
		a.modelSelect,
		a.modelStatus,
		widget.NewSeparator(),
		a.confLabel,
		confSlider,
		widget.NewSeparator(),
		openButton,
		a.fileLabel,
		a.detectButton,
		a.progress,
	)

	a.previewCanvas = newImageCanvas()
	a.resultCanvas = newImageCanvas()
	a.latencyLabel = widget.NewLabel("")

	a.emptyLabel = widget.NewLabel(noObjectsText)
	a.emptyLabel.Hide()
	a.countsBox = container.NewGridWrap(fyne.NewSize(countTileWidth, 80))

	a.complianceValue = cwidget.NewMetric("Compliance Rate", "")
	a.riskLabel = widget.NewLabel("")
	a.riskLabel.TextStyle = fyne.TextStyle{Bold: true}
	a.narrativeLabel = widget.NewLabel("")
	a.narrativeLabel.Wrapping = fyne.TextWrapWord
	a.safetyBox = container.NewVBox(
		widget.NewLabelWithStyle("Safety Compliance Analysis", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.complianceValue,
		a.riskLabel,
		a.narrativeLabel,
	)
	a.safetyBox.Hide()

	images := container.NewAppTabs(
		container.NewTabItem("Uploaded Image", a.previewCanvas),
		container.NewTabItem("Detection Result", container.NewBorder(a.latencyLabel, nil, nil, nil, a.resultCanvas)),
	)

	report := container.NewVBox(
		widget.NewLabelWithStyle("Object Counts", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.emptyLabel,
		a.countsBox,
		widget.NewSeparator(),
		a.safetyBox,
	)

	split := container.NewHSplit(
		container.NewPadded(sidebar),
		container.NewVSplit(images, container.NewVScroll(report)),
	)
	split.SetOffset(0.25)

	return split
}

func newImageCanvas() *canvas.Image {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(480, 360))
	return img
}

// begin and end bracket a background operation. They run on the fyne
// thread, so pending needs no lock.
func (a *DetectApp) begin() {
	a.pending++
	a.refreshControls()
}

func (a *DetectApp) end() {
	a.pending--
	a.refreshControls()
}

func (a *DetectApp) refreshControls() {
	if a.pending > 0 {
		a.progress.Show()
		a.progress.Start()
		a.detectButton.Disable()
		return
	}
	a.progress.Stop()
	a.progress.Hide()
	if a.current != nil && !a.processor.Busy() {
		a.detectButton.Enable()
	} else {
		a.detectButton.Disable()
	}
}

func (a *DetectApp) loadModel(label string) {
	if a.registry.Loaded(label) {
		a.modelStatus.SetText(fmt.Sprintf("%s model loaded!", label))
		return
	}

	a.modelStatus.SetText(fmt.Sprintf("Loading %s model...", label))
	a.begin()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		_, err := a.registry.Get(ctx, label)

		fyne.Do(func() {
			a.end()
			if err != nil {
				a.logger.Errorw("model load failed", "model", label, "error", err)
				a.modelStatus.SetText(fmt.Sprintf("%s model unavailable", label))
				dialog.ShowError(err, a.mainWin)
				return
			}
			a.modelStatus.SetText(fmt.Sprintf("%s model loaded!", label))
		})
	}()
}

func (a *DetectApp) openImage() {
	open := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.mainWin)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		data, err := io.ReadAll(reader)
		if err != nil {
			dialog.ShowError(errors.Wrap(err, "read image"), a.mainWin)
			return
		}

		img, err := upload.FromBytes(reader.URI().Name(), data)
		if err != nil {
			dialog.ShowError(err, a.mainWin)
			return
		}

		a.setImage(img)
	}, a.mainWin)

	open.SetFilter(storage.NewExtensionFileFilter(upload.FilterExtensions()))
	open.Show()
}

func (a *DetectApp) setImage(img *upload.Image) {
	a.current = img
	a.fileLabel.SetText(img.Name)

	a.previewCanvas.Image = upload.Thumbnail(img.Decoded, previewMaxW, previewMaxH)
	a.previewCanvas.Refresh()

	a.refreshControls()
}

func (a *DetectApp) detect() {
	if a.current == nil {
		return
	}

	img := a.current
	model := a.config.GetActiveModel()
	conf := a.config.GetConfidence()

	a.begin()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
		defer cancel()

		res, err := a.processor.RunImage(ctx, model, img.Decoded, conf)

		fyne.Do(func() {
			a.end()
			if err != nil {
				a.logger.Errorw("detection failed", "model", model, "file", img.Name, "error", err)
				dialog.ShowError(err, a.mainWin)
				return
			}
			a.showResult(res)
		})
	}()
}

func (a *DetectApp) showResult(res *detector.Result) {
	a.resultCanvas.Image = res.Annotated
	a.resultCanvas.Refresh()
	a.latencyLabel.SetText(formatLatency(res.Latency))

	a.countsBox.RemoveAll()
	if len(res.Counts) == 0 {
		a.emptyLabel.Show()
	} else {
		a.emptyLabel.Hide()
		for _, label := range res.Counts.SortedLabels() {
			a.countsBox.Add(cwidget.NewMetric(label, fmt.Sprint(res.Counts[label])))
		}
	}

	if res.Assessment == nil {
		a.safetyBox.Hide()
		return
	}

	importance := riskImportance(res.Assessment.Risk)
	a.complianceValue.SetValue(formatCompliance(res.Assessment.Compliance))
	a.complianceValue.SetImportance(importance)
	a.riskLabel.SetText(fmt.Sprintf("Risk Level: %s", res.Assessment.Risk))
	a.riskLabel.Importance = importance
	a.riskLabel.Refresh()
	a.narrativeLabel.SetText(res.Assessment.Narrative)
	a.safetyBox.Show()
}

func riskImportance(risk safety.RiskTier) widget.Importance {
	switch risk {
	case safety.RiskHigh:
		return widget.DangerImportance
	case safety.RiskMedium:
		return widget.WarningImportance
	default:
		return widget.SuccessImportance
	}
}

func formatConfidence(v float64) string {
	return fmt.Sprintf("Confidence Threshold: %.2f", v)
}

func formatCompliance(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}
