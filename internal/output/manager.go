package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sdmhttp "github.com/tanq16/sdm/internal/downloaders/http"
	"github.com/tanq16/sdm/internal/utils"
	"golang.org/x/time/rate"
)

type TaskOutput struct {
	ID          string
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	Downloaded  int64
	Total       int64
	Retries     int
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int

	debugLog rate.Sometimes
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager renders task progress in the terminal. It implements the engine's
// Reporter and ErrorReporter interfaces.
type Manager struct {
	outputs     map[string]*TaskOutput
	mutex       sync.RWMutex
	out         io.Writer
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
	log         zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[string]*TaskOutput),
		errors:      []ErrorReport{},
		out:         os.Stdout,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		log:         utils.GetLogger("output"),
	}
}

// SetOutput redirects rendering away from stdout.
func (m *Manager) SetOutput(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
}

// Register adds a task under a display label. Events for unknown ids
// register them with the id as label.
func (m *Manager) Register(id, label string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.register(id, label)
}

func (m *Manager) register(id, label string) *TaskOutput {
	if info, exists := m.outputs[id]; exists {
		return info
	}
	m.taskCount++
	info := &TaskOutput{
		ID:          id,
		Label:       label,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.taskCount,
		debugLog:    rate.Sometimes{Interval: 2 * time.Second},
	}
	m.outputs[id] = info
	return info
}

// SetMessage overrides the headline of a task, e.g. a scheduled start time.
func (m *Manager) SetMessage(id, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.register(id, id)
	info.Message = message
	info.LastUpdated = time.Now()
}

func (m *Manager) GetStatus(id string) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

func (m *Manager) OnProgress(id string, downloaded, total int64, speed float64, timeLeft time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.register(id, id)
	info.Downloaded = downloaded
	info.Total = total
	info.StreamLines = []string{renderProgress(downloaded, total, speed, timeLeft, 30)}
	info.LastUpdated = time.Now()
	info.debugLog.Do(func() {
		m.log.Debug().Str("task", id).Int64("downloaded", downloaded).Int64("total", total).Float64("speed", speed).Msg("progress")
	})
}

func (m *Manager) OnStatusChange(id string, status sdmhttp.Status) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.register(id, id)
	info.LastUpdated = time.Now()
	switch status {
	case sdmhttp.StatusPending:
		// tasks start out pending silently, so this is a retry or restart
		info.Retries++
		info.Message = fmt.Sprintf("Retrying %s (attempt %d)", info.Label, info.Retries)
		info.Complete = false
		info.Status = "pending"
	case sdmhttp.StatusDownloading:
		info.Status = "active"
		info.Message = fmt.Sprintf("Downloading %s", info.Label)
	case sdmhttp.StatusPaused:
		info.Status = "warning"
		info.Message = fmt.Sprintf("Paused %s", info.Label)
	case sdmhttp.StatusCompleted:
		info.StreamLines = []string{}
		info.Message = fmt.Sprintf("Completed %s", info.Label)
		info.Complete = true
		info.Status = "success"
	case sdmhttp.StatusCancelled:
		info.StreamLines = []string{}
		info.Message = fmt.Sprintf("Cancelled %s", info.Label)
		info.Complete = true
		info.Status = "cancelled"
	case sdmhttp.StatusFailed:
		info.StreamLines = []string{}
		info.Message = fmt.Sprintf("Failed %s", info.Label)
		info.Complete = true
		info.Status = "error"
	}
}

func (m *Manager) OnError(id string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.register(id, id)
	info.Error = err
	info.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{
		Label: info.Label,
		Error: err,
		Time:  time.Now(),
	})
}

func (m *Manager) OnRemoved(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.outputs, id)
}

// Counts returns how many tracked tasks completed and failed.
func (m *Manager) Counts() (succeeded, failed, total int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			succeeded++
		case "error":
			failed++
		}
	}
	return succeeded, failed, len(m.outputs)
}

func (m *Manager) ClearAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id := range m.outputs {
		m.outputs[id].StreamLines = []string{}
	}
}

func (m *Manager) sortTasks() (active, pending, completed []*TaskOutput) {
	var all []*TaskOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, t := range all {
		if t.Complete {
			completed = append(completed, t)
		} else if t.Status == "pending" && t.Message == "" {
			pending = append(pending, t)
		} else {
			active = append(active, t)
		}
	}
	return active, pending, completed
}

func (m *Manager) printTask(info *TaskOutput, elapsed time.Duration, lineCount *int, availableLines int) {
	fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), statusIndicator(info.Status),
		progressStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
	*lineCount++
	indent := strings.Repeat(" ", 2+4)
	for _, line := range info.StreamLines {
		if *lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s%s\n", indent, line)
		*lineCount++
	}
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, height := terminalSize()
	availableLines := height - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	activeTasks, pendingTasks, completedTasks := m.sortTasks()

	totalNeeded := len(completedTasks)
	for _, t := range activeTasks {
		totalNeeded += 1 + len(t.StreamLines)
	}
	totalNeeded += len(pendingTasks)
	if totalNeeded > availableLines {
		maxCompleted := max(0, availableLines-(totalNeeded-len(completedTasks)))
		if len(completedTasks) > maxCompleted {
			completedTasks = completedTasks[len(completedTasks)-maxCompleted:]
		}
	}

	for _, t := range activeTasks {
		if lineCount >= availableLines {
			break
		}
		m.printTask(t, time.Since(t.StartTime).Round(time.Second), &lineCount, availableLines)
	}
	for _, t := range pendingTasks {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), statusIndicator(t.Status), pendingStyle.Render("Waiting..."))
		lineCount++
	}
	if len(completedTasks) > 10 && lineCount < availableLines {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("%s%d downloads finished with varying hidden status ...", strings.Repeat(" ", 2), len(completedTasks)-8)))
		completedTasks = completedTasks[len(completedTasks)-8:]
		lineCount++
	}
	for _, t := range completedTasks {
		if lineCount >= availableLines {
			break
		}
		m.printTask(t, t.LastUpdated.Sub(t.StartTime).Round(time.Second), &lineCount, availableLines)
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
				m.updateDisplay()
			case <-m.doneCh:
				m.ClearAll()
				m.updateDisplay()
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
			progressStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Download: %s", err.Label)))
		for _, line := range wrapText(fmt.Sprintf("Error: %v", err.Error), 2+4) {
			fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(line))
		}
	}
}

func (m *Manager) ShowSummary() {
	success, failures, total := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
