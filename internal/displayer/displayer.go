package displayer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"obdscan/internal/advisor"
	"obdscan/internal/events"
	"obdscan/internal/models"
	"obdscan/pkg/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const barWidth = 20

// Controller is what the dashboard needs from the session.
type Controller interface {
	Connect() bool
	Disconnect() bool
	ClearCodes() bool
	State() models.ConnectionState
	Clearing() bool
	Vehicle() models.VehicleInfo
	Codes() []models.DTCEntry
	Parameters() []models.VehicleParameter
	Recommendations() []models.Recommendation
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Displayer is the terminal dashboard. It owns no state of its own: it
// issues commands to the session and redraws from the events it receives.
type Displayer struct {
	app    *tview.Application
	tabs   *tview.Pages
	ctrl   Controller
	ctx    context.Context
	cancel context.CancelFunc

	connectOnStart bool

	// UI elements cached for updates
	statusText *tview.TextView
	noticeText *tview.TextView
	helpText   *tview.TextView
	vehicleBox *tview.TextView
	paramsText *tview.TextView
	dtcTable   *tview.Table
	recsText   *tview.TextView
}

func New(ctrl Controller) *Displayer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Displayer{
		app:    tview.NewApplication(),
		tabs:   tview.NewPages(),
		ctrl:   ctrl,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ConnectOnStart makes Run start a connection once the dashboard listens.
func (d *Displayer) ConnectOnStart() *Displayer {
	d.connectOnStart = true
	return d
}

func (d *Displayer) Run() error {
	d.app.SetRoot(d.build(), true)
	d.app.SetInputCapture(d.handleKey)
	d.attach()
	return d.app.Run()
}

// attach subscribes to the session before anything can publish, so the
// first notice of a connection started here is not missed.
func (d *Displayer) attach() {
	ch, unsubscribe := d.ctrl.Subscribe(64)
	d.refreshAll()

	go func() {
		defer unsubscribe()
		d.eventLoop(ch)
	}()

	if d.connectOnStart {
		d.ctrl.Connect()
	}
}

func (d *Displayer) build() tview.Primitive {
	title := tview.NewTextView().SetTextAlign(tview.AlignCenter).SetText("obdscan - OBD2 diagnostics")
	d.statusText = tview.NewTextView().SetTextAlign(tview.AlignCenter).SetDynamicColors(true)
	d.noticeText = tview.NewTextView().SetTextAlign(tview.AlignCenter).SetDynamicColors(true)
	d.helpText = tview.NewTextView().SetTextAlign(tview.AlignCenter).
		SetText("[1 Panel] [2 Códigos] [3 Recomendaciones] [c Conectar] [d Desconectar] [x Borrar] [q Salir]")

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow)
	headerFlex.AddItem(title, 1, 0, false)
	headerFlex.AddItem(d.statusText, 1, 0, false)
	headerFlex.AddItem(d.noticeText, 1, 0, false)
	headerFlex.AddItem(d.helpText, 1, 0, false)

	d.tabs.AddPage("dashboard", d.buildDashboard(), true, true)
	d.tabs.AddPage("dtc", d.buildDTC(), true, false)
	d.tabs.AddPage("recommendations", d.buildRecommendations(), true, false)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow)
	mainFlex.AddItem(headerFlex, 4, 0, false)
	mainFlex.AddItem(d.tabs, 0, 1, true)
	return mainFlex
}

func (d *Displayer) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		d.Shutdown()
		return nil
	case '1':
		d.tabs.SwitchToPage("dashboard")
		return nil
	case '2':
		d.tabs.SwitchToPage("dtc")
		return nil
	case '3':
		d.tabs.SwitchToPage("recommendations")
		return nil
	case 'c', 'C':
		d.ctrl.Connect()
		return nil
	case 'd', 'D':
		d.ctrl.Disconnect()
		return nil
	case 'x', 'X':
		d.ctrl.ClearCodes()
		return nil
	}
	return event
}

func (d *Displayer) Shutdown() {
	d.cancel()
	d.app.Stop()
}

func (d *Displayer) eventLoop(ch <-chan events.Event) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			d.app.QueueUpdateDraw(func() { d.apply(e) })
		}
	}
}

// apply updates the widgets touched by e. Runs on the tview goroutine.
func (d *Displayer) apply(e events.Event) {
	switch e.Kind {
	case events.ConnectionChanged, events.ClearingChanged:
		d.setStatus(e.State, e.Clearing)
		if e.State == models.Connected {
			d.vehicleBox.SetText(formatVehicle(d.ctrl.Vehicle()))
		}
	case events.CodesChanged:
		fillDTCTable(d.dtcTable, e.Codes)
		d.recsText.SetText(formatRecommendations(e.Recommendations))
	case events.TelemetryTick:
		d.paramsText.SetText(formatParameters(e.Parameters))
		d.recsText.SetText(formatRecommendations(e.Recommendations))
	case events.Notice:
		d.noticeText.SetText(formatNotice(e))
		if e.Err != nil {
			log.Debug("Notice with error", zap.String("message", e.Message), zap.Error(e.Err))
		}
	}
}

func (d *Displayer) refreshAll() {
	d.setStatus(d.ctrl.State(), d.ctrl.Clearing())
	d.vehicleBox.SetText(formatVehicle(d.ctrl.Vehicle()))
	d.paramsText.SetText(formatParameters(d.ctrl.Parameters()))
	fillDTCTable(d.dtcTable, d.ctrl.Codes())
	d.recsText.SetText(formatRecommendations(d.ctrl.Recommendations()))
}

func (d *Displayer) setStatus(state models.ConnectionState, clearing bool) {
	d.statusText.SetText(formatStatus(state, clearing))
}

func (d *Displayer) buildDashboard() *tview.Flex {
	d.vehicleBox = tview.NewTextView().SetDynamicColors(true)
	d.vehicleBox.SetBorder(true).SetTitle(" Vehículo ")
	d.paramsText = tview.NewTextView().SetDynamicColors(true)
	d.paramsText.SetBorder(true).SetTitle(" Parámetros en vivo ")

	infoFlex := tview.NewFlex().SetDirection(tview.FlexRow)
	infoFlex.AddItem(d.vehicleBox, 5, 0, false)
	infoFlex.AddItem(d.paramsText, 0, 1, false)
	return infoFlex
}

func (d *Displayer) buildDTC() *tview.Table {
	d.dtcTable = tview.NewTable().SetBorders(true)
	fillDTCTable(d.dtcTable, nil)
	return d.dtcTable
}

func (d *Displayer) buildRecommendations() *tview.TextView {
	d.recsText = tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	d.recsText.SetBorder(true).SetTitle(" Recomendaciones ")
	return d.recsText
}

func fillDTCTable(tbl *tview.Table, codes []models.DTCEntry) {
	tbl.Clear()
	tbl.SetCell(0, 0, tview.NewTableCell("Código").SetSelectable(false).SetAlign(tview.AlignCenter))
	tbl.SetCell(0, 1, tview.NewTableCell("Descripción").SetSelectable(false).SetAlign(tview.AlignCenter))
	tbl.SetCell(0, 2, tview.NewTableCell("Severidad").SetSelectable(false).SetAlign(tview.AlignCenter))

	if len(codes) == 0 {
		tbl.SetCell(1, 0, tview.NewTableCell("Sin códigos").SetTextColor(tcell.ColorGreen))
		return
	}
	for i, c := range codes {
		tbl.SetCell(i+1, 0, tview.NewTableCell(c.Code))
		tbl.SetCell(i+1, 1, tview.NewTableCell(c.Description))
		tbl.SetCell(i+1, 2, tview.NewTableCell(string(c.Severity)).SetTextColor(severityColor(c.Severity)))
	}
}

func severityColor(s models.Severity) tcell.Color {
	switch s {
	case models.SeverityCritical:
		return tcell.ColorRed
	case models.SeverityWarning:
		return tcell.ColorOrange
	}
	return tcell.ColorBlue
}

func formatStatus(state models.ConnectionState, clearing bool) string {
	var status string
	switch state {
	case models.Connected:
		status = "[green]conectado[white]"
	case models.Connecting:
		status = "[yellow]conectando...[white]"
	default:
		status = "[red]desconectado[white]"
	}
	if clearing {
		status += "  [orange]borrando códigos...[white]"
	}
	return "Estado: " + status
}

func formatNotice(e events.Event) string {
	color := "white"
	switch e.Level {
	case events.LevelSuccess:
		color = "green"
	case events.LevelError:
		color = "red"
	case events.LevelLoading:
		color = "yellow"
	}
	return fmt.Sprintf("[%s]%s[white]", color, tview.Escape(e.Message))
}

func formatVehicle(v models.VehicleInfo) string {
	if v.VIN == "" && v.Protocol == "" {
		return "Sin datos del vehículo"
	}
	return fmt.Sprintf("VIN: %s\nProtocolo: %s\nECUs: %d", v.VIN, v.Protocol, v.ECUCount)
}

func formatParameters(params []models.VehicleParameter) string {
	var sb strings.Builder
	for _, p := range params {
		fmt.Fprintf(&sb, "%-18s %6s %-5s", p.Label, p.Value, p.Unit)
		if p.Percentage != nil {
			fmt.Fprintf(&sb, " [%s]%s[white]", colorName(p.Color), bar(p.Pct()))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// bar renders pct as a fixed-width gauge.
func bar(pct float64) string {
	filled := int(math.Round(math.Min(100, math.Max(0, pct)) / 100 * barWidth))
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func colorName(c string) string {
	if c == "" {
		return "white"
	}
	return c
}

func formatRecommendations(recs []models.Recommendation) string {
	var sb strings.Builder
	for i, r := range recs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s]● %s[white] (%s)\n", advisor.PriorityColor(r.Priority), tview.Escape(r.Title), r.Priority)
		fmt.Fprintf(&sb, "  %s\n", tview.Escape(r.Description))
		fmt.Fprintf(&sb, "  Componentes: %s\n", strings.Join(r.Components, ", "))
		fmt.Fprintf(&sb, "  Costo estimado: %s\n", r.EstimatedCost)
	}
	return sb.String()
}
