package cwidget

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Metric shows a small caption above a large value, e.g. a class count.
type Metric struct {
	widget.BaseWidget

	labelWidget *widget.Label
	valueWidget *widget.Label
}

func NewMetric(label, value string) *Metric {
	m := &Metric{}

	m.labelWidget = widget.NewLabel(label)
	m.labelWidget.Importance = widget.LowImportance

	m.valueWidget = widget.NewLabel(value)
	m.valueWidget.TextStyle = fyne.TextStyle{Bold: true}
	m.valueWidget.SizeName = theme.SizeNameHeadingText

	m.ExtendBaseWidget(m)

	return m
}

func (m *Metric) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		m.labelWidget,
		m.valueWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (m *Metric) Label() string {
	return m.labelWidget.Text
}

func (m *Metric) Value() string {
	return m.valueWidget.Text
}

func (m *Metric) SetValue(value string) {
	m.valueWidget.SetText(value)
}

func (m *Metric) SetImportance(importance widget.Importance) {
	m.valueWidget.Importance = importance
	m.valueWidget.Refresh()
}

func (m *Metric) Importance() widget.Importance {
	return m.valueWidget.Importance
}
