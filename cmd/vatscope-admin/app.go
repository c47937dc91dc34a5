package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/vatscope/internal/server"
)

const (
	pageLogin     = "login"
	pageDashboard = "dashboard"
)

// App is the admin console.
type App struct {
	client  *adminClient
	refresh time.Duration

	tviewApp  *tview.Application
	pages     *tview.Pages
	loginForm *tview.Form
	status    *tview.TextView
	summary   *tview.TextView
	history   *tview.TextView
	activity  *tview.TextView

	mu       sync.Mutex
	last     server.AdminStats
	lastPoll time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewApp creates the console for client, reloading stats every refresh.
func NewApp(client *adminClient, refresh time.Duration) *App {
	a := &App{
		client:   client,
		refresh:  refresh,
		stopChan: make(chan struct{}),
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()
	a.pages = tview.NewPages()

	a.createLoginPage()
	a.createDashboard()

	a.pages.SwitchToPage(pageLogin)
	a.tviewApp.SetRoot(a.pages, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)
}

func (a *App) createLoginPage() {
	a.status = tview.NewTextView().SetDynamicColors(true)

	a.loginForm = tview.NewForm().
		AddPasswordField("Password", "", 32, '*', nil).
		AddButton("Login", a.submitLogin).
		AddButton("Quit", a.Stop)
	a.loginForm.SetBorder(true).SetTitle(" vatscope admin ")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(a.loginForm, 50, 0, true).
			AddItem(nil, 0, 1, false), 7, 0, true).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(a.status, 50, 0, false).
			AddItem(nil, 0, 1, false), 2, 0, false).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage(pageLogin, layout, true, true)
}

func (a *App) createDashboard() {
	a.summary = tview.NewTextView().SetDynamicColors(true)
	a.summary.SetBorder(true).SetTitle(" Overview ")

	a.history = tview.NewTextView().SetDynamicColors(true)
	a.history.SetBorder(true).SetTitle(" Visitors ")

	a.activity = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.activity.SetBorder(true).SetTitle(" Activity ")

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetText("[white]r[-] Refresh  [white]l[-] Logout  [white]q[-] Quit")

	top := tview.NewFlex().
		AddItem(a.summary, 40, 0, false).
		AddItem(a.history, 0, 1, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 0, 3, false).
		AddItem(a.activity, 0, 2, true).
		AddItem(help, 1, 0, false)

	a.pages.AddPage(pageDashboard, layout, true, false)
}

func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if front, _ := a.pages.GetFrontPage(); front != pageDashboard {
		if event.Key() == tcell.KeyEscape {
			a.Stop()
			return nil
		}
		return event
	}

	switch {
	case event.Key() == tcell.KeyEscape || event.Rune() == 'q':
		a.Stop()
		return nil
	case event.Rune() == 'r':
		go a.poll()
		return nil
	case event.Rune() == 'l':
		a.client.Logout()
		a.showLogin("Logged out")
		return nil
	}
	return event
}

func (a *App) submitLogin() {
	password := a.loginForm.GetFormItemByLabel("Password").(*tview.InputField).GetText()
	a.status.SetText("[gray]Logging in...[-]")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.client.Login(ctx, password); err != nil {
			a.tviewApp.QueueUpdateDraw(func() {
				a.status.SetText(fmt.Sprintf("[red]%s[-]", err))
			})
			return
		}
		a.tviewApp.QueueUpdateDraw(func() {
			a.loginForm.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
			a.status.Clear()
			a.pages.SwitchToPage(pageDashboard)
		})
		a.poll()
	}()
}

// showLogin must run on the UI goroutine.
func (a *App) showLogin(msg string) {
	a.status.SetText(fmt.Sprintf("[yellow]%s[-]", msg))
	a.pages.SwitchToPage(pageLogin)
	a.tviewApp.SetFocus(a.loginForm)
}

// poll fetches stats and redraws the dashboard.
func (a *App) poll() {
	if !a.client.LoggedIn() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stats, err := a.client.Stats(ctx)
	if errors.Is(err, errUnauthorized) {
		a.tviewApp.QueueUpdateDraw(func() { a.showLogin("Session expired, log in again") })
		return
	}

	a.mu.Lock()
	if err == nil {
		a.last = stats
		a.lastPoll = time.Now()
	}
	a.mu.Unlock()

	a.tviewApp.QueueUpdateDraw(func() { a.render(err) })
}

// render must run on the UI goroutine.
func (a *App) render(pollErr error) {
	a.mu.Lock()
	stats, at := a.last, a.lastPoll
	a.mu.Unlock()

	a.summary.SetText(renderSummary(stats, at, pollErr))

	_, _, w, h := a.history.GetInnerRect()
	a.history.SetText(renderHistory(stats.Visitors.History, max(10, w), max(1, h-2)))

	a.activity.SetText(renderActivity(stats, time.Now()))
}

func renderSummary(stats server.AdminStats, at time.Time, pollErr error) string {
	var b strings.Builder
	b.WriteString("[yellow]VISITORS[-]\n")
	fmt.Fprintf(&b, "  [gray]Online now:[-]  [white]%d[-]\n", stats.Visitors.Current)
	fmt.Fprintf(&b, "  [gray]Peak today:[-]  [white]%d[-]\n", stats.Visitors.PeakToday)
	fmt.Fprintf(&b, "  [gray]Unique:[-]      [white]%d[-]\n\n", stats.Visitors.UniqueVisitors)

	b.WriteString("[yellow]FEED[-]\n")
	fmt.Fprintf(&b, "  [gray]Pilots:[-]      [white]%d[-]\n", stats.Feed.Pilots)
	fmt.Fprintf(&b, "  [gray]Controllers:[-] [white]%d[-]\n", stats.Feed.Controllers)
	fmt.Fprintf(&b, "  [gray]Zones:[-]       [white]%d[-]\n", stats.Feed.Zones)
	fmt.Fprintf(&b, "  [gray]State:[-]       [white]%s[-]\n", stats.Feed.State)
	fmt.Fprintf(&b, "  [gray]Dropped:[-]     [white]%d[-]\n\n", stats.Feed.DroppedTicks)

	if n, ok := stats.Database["airports"]; ok {
		b.WriteString("[yellow]DATABASE[-]\n")
		fmt.Fprintf(&b, "  [gray]Airports:[-]    [white]%v[-]\n\n", n)
	}

	if !at.IsZero() {
		fmt.Fprintf(&b, "[gray]Updated %s[-]\n", at.Format("15:04:05"))
	}
	if pollErr != nil {
		fmt.Fprintf(&b, "[red]%s[-]\n", pollErr)
	}
	return b.String()
}

func renderActivity(stats server.AdminStats, now time.Time) string {
	if len(stats.Activity) == 0 {
		return "[gray]No activity[-]"
	}
	var b strings.Builder
	for _, e := range stats.Activity {
		color := "white"
		if strings.HasSuffix(e.Action, "_failed") {
			color = "red"
		}
		fmt.Fprintf(&b, "[gray]%-12s[-] [%s]%-14s[-] %s\n", formatAge(e.Time, now), color, e.Action, tview.Escape(e.Detail))
	}
	return b.String()
}

// Run starts the refresh loop and the UI. It blocks until Stop.
func (a *App) Run() error {
	go a.updateLoop()
	return a.tviewApp.Run()
}

func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.poll()
		case <-a.stopChan:
			return
		}
	}
}

// Stop ends the refresh loop and the UI.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.tviewApp.Stop()
	})
}
