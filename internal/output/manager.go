package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
	"golang.org/x/term"
)

type ChunkFailure struct {
	Chunk   int
	Attempt int
	Err     error
	Time    time.Time
}

// Report is the final line item for a finished download.
type Report struct {
	Size         int64
	Elapsed      time.Duration
	Chunks       int
	Attempts     int
	Verification types.VerificationOutcome
	Destination  string
}

type TaskOutput struct {
	ID          int
	URL         string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Report      *Report

	Total      int64
	Received   int64
	Chunks     int
	ChunksDone int
	Failures   []ChunkFailure

	failing map[int]struct{} // failed and not yet completed
}

type ErrorReport struct {
	URL   string
	Error error
	Time  time.Time
}

type Manager struct {
	out         io.Writer
	interactive bool
	verbose     bool
	outputs     map[int]*TaskOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
}

// NewManager redraws live progress only when w is a terminal. Otherwise it
// stays quiet until the summary.
func NewManager(w io.Writer) *Manager {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Manager{
		out:         w,
		interactive: interactive,
		outputs:     make(map[int]*TaskOutput),
		maxStreams:  5,
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
	}
}

// SetVerbose lists every failed attempt in the summary instead of a count per
// chunk.
func (m *Manager) SetVerbose(v bool) {
	m.verbose = v
}

func (m *Manager) RegisterTask(url string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.taskCount++
	m.outputs[m.taskCount] = &TaskOutput{
		ID:          m.taskCount,
		URL:         url,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.taskCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetPlan(id int, resource types.ResourceDescriptor, chunks []types.ChunkDescriptor) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Total = resource.Length
		info.Chunks = len(chunks)
		info.Status = "active"
		info.Message = fmt.Sprintf("Downloading %s in %d chunks", info.URL, len(chunks))
		info.LastUpdated = time.Now()
	}
}

// EventHandler returns a callback that folds chunk events into task id.
func (m *Manager) EventHandler(id int) func(types.ChunkEvent) {
	return func(ev types.ChunkEvent) {
		m.HandleEvent(id, ev)
	}
}

func (m *Manager) HandleEvent(id int, ev types.ChunkEvent) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[id]
	if !exists {
		return
	}
	info.LastUpdated = time.Now()
	switch ev.Status {
	case types.ChunkCompleted:
		info.Received += ev.Bytes
		info.ChunksDone++
		delete(info.failing, ev.Index)
	case types.ChunkFailed, types.ChunkExhausted:
		if info.failing == nil {
			info.failing = make(map[int]struct{})
		}
		info.failing[ev.Index] = struct{}{}
		info.Failures = append(info.Failures, ChunkFailure{Chunk: ev.Index, Attempt: ev.Attempt, Err: ev.Err, Time: time.Now()})
		line := fmt.Sprintf("chunk %d attempt %d failed after %s", ev.Index, ev.Attempt, utils.FormatBytes(uint64(ev.Bytes)))
		if ev.Status == types.ChunkExhausted {
			line = fmt.Sprintf("chunk %d gave up after %d attempts", ev.Index, ev.Attempt)
		}
		width, _ := terminalSize(m.out)
		info.StreamLines = append(info.StreamLines, wrapLine(line, width-2-4-2)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
	}
}

func (m *Manager) Complete(id int, report Report) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = nil
		info.Report = &report
		info.Complete = true
		info.Status = "success"
		info.Message = fmt.Sprintf("Completed %s", info.URL)
		if report.Verification.Status == types.VerificationMismatch {
			info.Status = "warning"
			info.Message = fmt.Sprintf("Completed %s with a digest mismatch", info.URL)
			m.errors = append(m.errors, ErrorReport{URL: info.URL, Error: report.Verification.Err(), Time: time.Now()})
		}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = nil
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Message = fmt.Sprintf("Failed %s", info.URL)
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{URL: info.URL, Error: err, Time: time.Now()})
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortedTasks() []*TaskOutput {
	tasks := make([]*TaskOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		tasks = append(tasks, info)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, height := terminalSize(m.out)
	availableLines := height - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	indent := strings.Repeat(" ", 2+4)
	for _, info := range m.sortedTasks() {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
		lineCount++
		if info.Complete {
			continue
		}
		if info.Total > 0 && lineCount < availableLines {
			secs := time.Since(info.StartTime).Seconds()
			text := fmt.Sprintf("%s / %s %s %s", utils.FormatBytes(uint64(info.Received)), utils.FormatBytes(uint64(info.Total)), StyleSymbols["bullet"], utils.FormatSpeed(info.Received, secs))
			fmt.Fprintf(m.out, "%s%s %s %s\n", indent, chunkBar(info.ChunksDone, len(info.failing), info.Chunks, 30), StyleSymbols["bullet"], debugStyle.Render(text))
			lineCount++
		}
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.interactive {
					m.updateDisplay()
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayReport(info *TaskOutput) {
	r := info.Report
	pad := strings.Repeat(" ", 2+4)
	row := func(key, value string) {
		fmt.Fprintf(m.out, "%s%s %s\n", pad, detailStyle.Render(fmt.Sprintf("%-10s", key)), value)
	}
	fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), styleMessage(info.Status, info.Message))
	row("Size", fmt.Sprintf("%s (%d bytes)", utils.FormatBytes(uint64(r.Size)), r.Size))
	row("Time", r.Elapsed.Round(time.Millisecond).String())
	row("Speed", utils.FormatSpeed(r.Size, r.Elapsed.Seconds()))
	row("Chunks", fmt.Sprintf("%d (%d attempts, %d retries)", r.Chunks, r.Attempts, r.Attempts-r.Chunks))
	row("SHA-256", r.Verification.Computed)
	switch r.Verification.Status {
	case types.VerificationMatch:
		row("Verify", success2Style.Render("PASS"))
	case types.VerificationMismatch:
		row("Verify", errorStyle.Render("FAIL")+debugStyle.Render(" expected "+r.Verification.Expected))
	default:
		row("Verify", debugStyle.Render("SKIPPED (no expected digest)"))
	}
	if r.Destination != "" {
		row("Saved", r.Destination)
	}
}

func (m *Manager) displayChunkFailures(info *TaskOutput) {
	if len(info.Failures) == 0 {
		return
	}
	pad := strings.Repeat(" ", 2+4)
	fmt.Fprintf(m.out, "%s%s\n", pad, warningStyle.Render("Chunk errors:"))
	if m.verbose {
		for _, f := range info.Failures {
			fmt.Fprintf(m.out, "%s  %s %s\n", pad,
				debugStyle.Render(fmt.Sprintf("[%s] chunk %d attempt %d", f.Time.Format("15:04:05.000"), f.Chunk, f.Attempt)),
				streamStyle.Render(fmt.Sprint(f.Err)))
		}
		return
	}
	perChunk := map[int]int{}
	var order []int
	for _, f := range info.Failures {
		if perChunk[f.Chunk] == 0 {
			order = append(order, f.Chunk)
		}
		perChunk[f.Chunk]++
	}
	sort.Ints(order)
	for _, idx := range order {
		fmt.Fprintf(m.out, "%s  %s\n", pad, debugStyle.Render(fmt.Sprintf("chunk %d: %d failed attempts", idx, perChunk[idx])))
	}
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.URL))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.interactive && m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	fmt.Fprintln(m.out)
	var success, failures int
	for _, info := range m.sortedTasks() {
		switch info.Status {
		case "success", "warning":
			success++
		case "error":
			failures++
		}
		if info.Report != nil {
			m.displayReport(info)
		} else if info.Complete {
			fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), styleMessage(info.Status, info.Message))
		}
		m.displayChunkFailures(info)
	}
	if len(m.outputs) > 1 {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
		if failures > 0 {
			fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
		}
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
