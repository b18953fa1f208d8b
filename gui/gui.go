// Package gui is the desktop window: a settings column and Text / File
// tabs over the translation pipeline.
package gui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/i18n"
	"github.com/kirinonakar/llm-translator/llm"
	"github.com/kirinonakar/llm-translator/textfile"
	"github.com/kirinonakar/llm-translator/translate"
)

const appID = "io.github.kirinonakar.llm-translator"

// Options configure the window.
type Options struct {
	Settings config.Settings
	Prompts  translate.Prompts
	// NewTranslator defaults to an llm.Client for the form's server.
	NewTranslator func(config.Settings) translate.Translator
	OnLog         func(format string, args ...any)
}

// Run opens the window and blocks until it is closed.
func Run(opts Options) {
	a := app.NewWithID(appID)
	w := a.NewWindow(i18n.T("LLM Translator"))
	w.Resize(fyne.NewSize(1100, 720))

	ui := NewMainUI(w, opts)
	w.SetContent(ui.Build())
	w.SetOnClosed(func() { ui.run.stop() })
	w.ShowAndRun()
}

// MainUI holds the window's widgets.
type MainUI struct {
	window fyne.Window
	opts   Options
	run    runner

	sources languageChoices
	targets languageChoices

	// Settings column
	serverEntry  *widget.Entry
	modelEntry   *widget.Entry
	tempSlider   *widget.Slider
	tempLabel    *widget.Label
	sourceSelect *widget.Select
	targetSelect *widget.Select
	chunkEntry   *widget.Entry
	streamCheck  *widget.Check

	// Text tab
	inputText  *widget.Entry
	outputText *widget.Entry

	// File tab
	filePath    string
	fileText    string
	fileLabel   *widget.Label
	filePreview *widget.Entry
	fileResult  string

	// Shared controls
	translateBtns []*widget.Button
	stopBtn       *widget.Button
	progressBar   *widget.ProgressBar
	statusLabel   *widget.Label
}

// NewMainUI creates the UI for window w.
func NewMainUI(w fyne.Window, opts Options) *MainUI {
	if opts.NewTranslator == nil {
		opts.NewTranslator = func(s config.Settings) translate.Translator {
			return llm.New(llm.Config{
				BaseURL: s.ServerURL,
				APIKey:  s.APIKey,
				Model:   s.Model,
				Timeout: s.Timeout,
				Proxy:   s.Proxy,
			})
		}
	}
	return &MainUI{
		window:  w,
		opts:    opts,
		sources: newLanguageChoices(true, i18n.T("Auto detect")),
		targets: newLanguageChoices(false, ""),
	}
}

// Build creates the complete layout.
func (ui *MainUI) Build() fyne.CanvasObject {
	ui.progressBar = widget.NewProgressBar()
	ui.statusLabel = widget.NewLabel(i18n.T("Ready"))
	ui.stopBtn = widget.NewButtonWithIcon(i18n.T("Stop"), theme.MediaStopIcon(), ui.onStop)
	ui.stopBtn.Disable()

	tabs := container.NewAppTabs(
		container.NewTabItem(i18n.T("Text"), ui.buildTextTab()),
		container.NewTabItem(i18n.T("File"), ui.buildFileTab()),
	)

	bottom := container.NewBorder(nil, nil, ui.stopBtn, ui.statusLabel, ui.progressBar)
	content := container.NewBorder(nil, bottom, nil, nil, tabs)

	split := container.NewHSplit(ui.buildSettings(), content)
	split.SetOffset(0.25)
	return split
}

func (ui *MainUI) buildSettings() fyne.CanvasObject {
	s := ui.opts.Settings

	ui.serverEntry = widget.NewEntry()
	ui.serverEntry.SetText(s.ServerURL)

	ui.modelEntry = widget.NewEntry()
	ui.modelEntry.SetPlaceHolder(i18n.T("Server default"))
	ui.modelEntry.SetText(s.Model)

	ui.tempLabel = widget.NewLabel("")
	ui.tempSlider = widget.NewSlider(0, translate.MaxTemperature)
	ui.tempSlider.Step = 0.1
	ui.tempSlider.OnChanged = func(v float64) {
		ui.tempLabel.SetText(strconv.FormatFloat(v, 'f', 1, 64))
	}
	ui.tempSlider.SetValue(s.Temperature)
	ui.tempLabel.SetText(strconv.FormatFloat(s.Temperature, 'f', 1, 64))

	ui.sourceSelect = widget.NewSelect(ui.sources.labels, nil)
	ui.sourceSelect.SetSelected(ui.sources.label(s.SourceLang))
	ui.targetSelect = widget.NewSelect(ui.targets.labels, nil)
	ui.targetSelect.SetSelected(ui.targets.label(s.TargetLang))

	swap := widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), ui.onSwapLanguages)

	ui.chunkEntry = widget.NewEntry()
	ui.chunkEntry.SetText(strconv.Itoa(s.ChunkSize))

	ui.streamCheck = widget.NewCheck(i18n.T("Stream output"), nil)
	ui.streamCheck.SetChecked(s.Stream)

	form := widget.NewForm(
		widget.NewFormItem(i18n.T("Server URL"), ui.serverEntry),
		widget.NewFormItem(i18n.T("Model"), ui.modelEntry),
		widget.NewFormItem(i18n.T("Temperature"), container.NewBorder(nil, nil, nil, ui.tempLabel, ui.tempSlider)),
		widget.NewFormItem(i18n.T("Source language"), ui.sourceSelect),
		widget.NewFormItem(i18n.T("Target language"), container.NewBorder(nil, nil, nil, swap, ui.targetSelect)),
		widget.NewFormItem(i18n.T("Chunk size"), ui.chunkEntry),
	)
	return container.NewVScroll(container.NewVBox(
		widget.NewLabelWithStyle(i18n.T("Settings"), fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		form,
		ui.streamCheck,
	))
}

func (ui *MainUI) buildTextTab() fyne.CanvasObject {
	ui.inputText = widget.NewMultiLineEntry()
	ui.inputText.Wrapping = fyne.TextWrapWord
	ui.inputText.SetPlaceHolder(i18n.T("Text to translate"))

	ui.outputText = widget.NewMultiLineEntry()
	ui.outputText.Wrapping = fyne.TextWrapWord

	translateBtn := widget.NewButtonWithIcon(i18n.T("Translate"), theme.MediaPlayIcon(), ui.onTranslateText)
	translateBtn.Importance = widget.HighImportance
	ui.translateBtns = append(ui.translateBtns, translateBtn)

	toolbar := container.NewHBox(
		widget.NewButtonWithIcon(i18n.T("Paste"), theme.ContentPasteIcon(), ui.onPaste),
		translateBtn,
		widget.NewButtonWithIcon(i18n.T("Copy"), theme.ContentCopyIcon(), ui.onCopy),
		widget.NewButtonWithIcon(i18n.T("Save"), theme.DocumentSaveIcon(), func() {
			ui.saveAs(ui.outputText.Text, textfile.OutputPrefix+"text.txt", "")
		}),
		widget.NewButtonWithIcon(i18n.T("Clear"), theme.ContentClearIcon(), func() {
			ui.inputText.SetText("")
			ui.outputText.SetText("")
		}),
	)

	panes := container.NewGridWithColumns(2, ui.inputText, ui.outputText)
	return container.NewBorder(toolbar, nil, nil, nil, panes)
}

func (ui *MainUI) buildFileTab() fyne.CanvasObject {
	ui.fileLabel = widget.NewLabel(i18n.T("No file selected"))
	ui.filePreview = widget.NewMultiLineEntry()
	ui.filePreview.Wrapping = fyne.TextWrapWord

	translateBtn := widget.NewButtonWithIcon(i18n.T("Translate file"), theme.MediaPlayIcon(), ui.onTranslateFile)
	translateBtn.Importance = widget.HighImportance
	ui.translateBtns = append(ui.translateBtns, translateBtn)

	toolbar := container.NewHBox(
		widget.NewButtonWithIcon(i18n.T("Open"), theme.FolderOpenIcon(), ui.onOpenFile),
		translateBtn,
		widget.NewButtonWithIcon(i18n.T("Save"), theme.DocumentSaveIcon(), func() {
			if ui.filePath == "" {
				return
			}
			ui.saveAs(ui.fileResult, textfile.OutputName(ui.filePath), filepath.Dir(ui.filePath))
		}),
	)
	return container.NewBorder(container.NewVBox(toolbar, ui.fileLabel), nil, nil, nil, ui.filePreview)
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

func (ui *MainUI) formValues() formValues {
	return formValues{
		ServerURL:   ui.serverEntry.Text,
		Model:       ui.modelEntry.Text,
		Temperature: ui.tempSlider.Value,
		SourceLang:  ui.sources.code(ui.sourceSelect.Selected),
		TargetLang:  ui.targets.code(ui.targetSelect.Selected),
		ChunkSize:   ui.chunkEntry.Text,
		Stream:      ui.streamCheck.Checked,
	}
}

func (ui *MainUI) onSwapLanguages() {
	src := ui.sources.code(ui.sourceSelect.Selected)
	if src == "" || src == "auto" {
		return
	}
	tgt := ui.targets.code(ui.targetSelect.Selected)
	ui.sourceSelect.SetSelected(ui.sources.label(tgt))
	ui.targetSelect.SetSelected(ui.targets.label(src))
}

func (ui *MainUI) onPaste() {
	ui.inputText.SetText(ui.window.Clipboard().Content())
}

func (ui *MainUI) onCopy() {
	ui.window.Clipboard().SetContent(ui.outputText.Text)
	ui.statusLabel.SetText(i18n.T("Copied to clipboard"))
}

func (ui *MainUI) onStop() {
	if ui.run.stop() {
		ui.statusLabel.SetText(i18n.T("Stopping..."))
	}
}

func (ui *MainUI) onTranslateText() {
	ui.start(ui.inputText.Text, ui.outputText, func(text string, err error) {
		ui.outputText.SetText(text)
	})
}

func (ui *MainUI) onOpenFile() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		defer reader.Close()

		path := reader.URI().Path()
		text, err := textfile.ReadFrom(reader)
		if err != nil {
			dialog.ShowError(fmt.Errorf("reading %s: %w", path, err), ui.window)
			return
		}
		ui.filePath = path
		ui.fileText = text
		ui.fileResult = ""
		ui.fileLabel.SetText(fmt.Sprintf(i18n.T("%s (%d characters)"), filepath.Base(path), len([]rune(text))))
		ui.filePreview.SetText(text)
	}, ui.window)

	fd.SetFilter(storage.NewExtensionFileFilter(textfile.SupportedExtensions))
	fd.Show()
}

func (ui *MainUI) onTranslateFile() {
	if ui.filePath == "" {
		dialog.ShowInformation(i18n.T("No file selected"), i18n.T("Open a text file first."), ui.window)
		return
	}
	ui.start(ui.fileText, ui.filePreview, ui.finishFile)
}

// finishFile offers to save a finished file translation. A partial one is
// written to a temp file right away and its path shown in the status bar.
func (ui *MainUI) finishFile(out string, err error) {
	ui.fileResult = out
	ui.filePreview.SetText(out)
	switch {
	case err == nil && out != "":
		ui.saveAs(out, textfile.OutputName(ui.filePath), filepath.Dir(ui.filePath))
	case err != nil && out != "":
		if path, werr := textfile.WriteTemp(out); werr == nil {
			ui.statusLabel.SetText(fmt.Sprintf(i18n.T("Partial translation saved to %s"), path))
		}
	}
}

func (ui *MainUI) saveAs(text, name, dir string) {
	if text == "" {
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		defer writer.Close()
		if _, err := io.WriteString(writer, text); err != nil {
			dialog.ShowError(fmt.Errorf("writing %s: %w", writer.URI().Path(), err), ui.window)
			return
		}
		ui.statusLabel.SetText(fmt.Sprintf(i18n.T("Saved %s"), writer.URI().Name()))
	}, ui.window)
	fd.SetFileName(name)
	if dir != "" {
		if lister, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
			fd.SetLocation(lister)
		}
	}
	fd.Show()
}

// start validates the form and runs the pipeline off the UI goroutine.
// out shows streamed text; finish runs on the UI goroutine with the final
// or partial translation.
func (ui *MainUI) start(text string, out *widget.Entry, finish func(string, error)) {
	st, err := ui.formValues().apply(ui.opts.Settings)
	if err != nil {
		dialog.ShowError(err, ui.window)
		return
	}
	p, err := translate.New(ui.opts.NewTranslator(st), pipelineConfig(st, ui.opts.Prompts, ui.opts.OnLog))
	if err != nil {
		dialog.ShowError(err, ui.window)
		return
	}
	ctx, ok := ui.run.start(context.Background())
	if !ok {
		return
	}

	ui.setBusy(true)
	out.SetText("")
	ui.progressBar.SetValue(0)

	go func() {
		defer ui.run.done()

		var finished string
		res, err := p.Run(ctx, text, translate.Observer{
			OnState: func(s translate.Status) {
				fyne.Do(func() { ui.showStatus(s) })
			},
			OnFragment: func(f translate.Fragment) {
				partial := f.Partial
				fyne.Do(func() { out.SetText(partial) })
			},
			OnProgress: func(e translate.ProgressEvent) {
				finished += e.Latest
				snapshot := finished
				fyne.Do(func() { out.SetText(snapshot) })
			},
		})

		var result string
		if res != nil {
			result = res.FullText
		}
		fyne.Do(func() { ui.complete(result, err, finish) })
	}()
}

// complete ends a run on the UI goroutine. finish runs last so that a
// status it sets replaces the generic one.
func (ui *MainUI) complete(result string, err error, finish func(string, error)) {
	ui.setBusy(false)
	ui.showResult(err)
	finish(result, err)
}

func (ui *MainUI) setBusy(busy bool) {
	for _, b := range ui.translateBtns {
		if busy {
			b.Disable()
		} else {
			b.Enable()
		}
	}
	if busy {
		ui.stopBtn.Enable()
	} else {
		ui.stopBtn.Disable()
	}
}

func (ui *MainUI) showStatus(s translate.Status) {
	if s.Total > 0 {
		ui.progressBar.Max = float64(s.Total)
		ui.progressBar.SetValue(float64(s.Completed))
	}
	ui.statusLabel.SetText(statusText(s))
}

func (ui *MainUI) showResult(err error) {
	if err == nil {
		return
	}
	var pf *translate.PartialFailure
	if errors.Is(err, context.Canceled) {
		if errors.As(err, &pf) {
			ui.statusLabel.SetText(fmt.Sprintf(i18n.T("Stopped after %d of %d chunks"), pf.Completed, pf.Total))
		}
		return
	}
	dialog.ShowError(err, ui.window)
}

// statusText is the label shown for a pipeline status.
func statusText(s translate.Status) string {
	switch s.State {
	case translate.Splitting:
		return i18n.T("Splitting text...")
	case translate.Translating:
		return fmt.Sprintf(i18n.T("Translating %d/%d"), s.Completed, s.Total)
	case translate.Completed:
		return fmt.Sprintf(i18n.N("Done: %d chunk", "Done: %d chunks", s.Total), s.Total)
	case translate.Failed:
		return fmt.Sprintf(i18n.T("Failed after %d of %d chunks"), s.Completed, s.Total)
	default:
		return i18n.T("Ready")
	}
}
