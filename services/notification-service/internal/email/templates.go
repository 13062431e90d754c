package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/workgate/agenda/libs/events"
)

const layout = `<body style="font-family: Arial, sans-serif; margin: 0; padding: 0; background-color: #f4f4f4;">
<table width="100%" border="0" cellspacing="0" cellpadding="0"><tr><td align="center" style="padding: 20px 0;">
<table width="600" border="0" cellspacing="0" cellpadding="0" style="background-color: #ffffff; border-radius: 8px;">
<tr><td align="center" style="padding: 30px 20px; background-color: #0b0b0d; color: #ffffff;">
<h1 style="margin: 0; font-size: 24px;">{{template "title" .}}</h1>
</td></tr>
<tr><td style="padding: 40px 30px; color: #333333;">{{template "content" .}}</td></tr>
<tr><td align="center" style="padding: 20px; font-size: 12px; color: #888888; background-color: #f4f4f4;">
<p style="margin: 0;">Este é um e-mail automático, por favor não responda.</p>
</td></tr>
</table>
</td></tr></table>
</body>`

const bookedContent = `{{define "title"}}Agendamento Confirmado!{{end}}
{{define "content"}}
<p style="font-size: 16px;">Olá, {{.ClientName}},</p>
<p style="font-size: 16px; line-height: 1.5;">Seu agendamento para o serviço de <strong>{{.ServiceName}}</strong> com <strong>{{.ProviderName}}</strong> foi confirmado com sucesso.</p>
<p style="font-size: 18px; padding: 20px; background-color: #f9f9f9; border: 1px solid #eeeeee;">
<strong>Data:</strong> {{.Date}}<br><strong>Hora:</strong> {{.Time}}
</p>
<p style="font-size: 16px;">Se precisar de qualquer alteração, por favor, entre em contato.</p>
{{end}}`

const agendaContent = `{{define "title"}}Sua Agenda de {{.Date}}{{end}}
{{define "content"}}
<p style="font-size: 16px;">Olá, {{.ProviderName}},</p>
{{if .Items}}
<p style="font-size: 16px; line-height: 1.5;">Aqui está o resumo dos seus compromissos para {{.Date}}:</p>
{{range .Items}}
<div style="padding: 10px; border-bottom: 1px solid #eeeeee;">
<p style="margin: 0; font-size: 16px;"><strong style="color: #6b0082;">{{.Time}}</strong> - {{.ServiceName}}</p>
<p style="margin: 5px 0 0; font-size: 14px; color: #888888;">Cliente: {{.ClientName}}</p>
</div>
{{end}}
{{else}}
<p style="font-size: 16px;">Você não tem agendamentos para {{.Date}}.</p>
{{end}}
<p style="font-size: 16px;">Tenha um ótimo dia!</p>
{{end}}`

const reminderContent = `{{define "title"}}Lembrete de Agendamento{{end}}
{{define "content"}}
<p style="font-size: 16px;">Olá, {{.ClientName}},</p>
<p style="font-size: 16px; line-height: 1.5;">Este é um lembrete do seu agendamento de <strong>{{.ServiceName}}</strong> com <strong>{{.ProviderName}}</strong> no dia {{.Date}} às {{.Time}}.</p>
{{end}}`

var (
	bookedTmpl   = template.Must(template.Must(template.New("booked").Parse(layout)).Parse(bookedContent))
	agendaTmpl   = template.Must(template.Must(template.New("agenda").Parse(layout)).Parse(agendaContent))
	reminderTmpl = template.Must(template.Must(template.New("reminder").Parse(layout)).Parse(reminderContent))
)

// DisplayDate turns an ISO date into DD/MM/YYYY. Unparseable input is
// returned unchanged.
func DisplayDate(iso string) string {
	d, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return d.Format("02/01/2006")
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// RenderBooked builds the client confirmation.
func RenderBooked(b events.Booked) (Message, error) {
	b.Date = DisplayDate(b.Date)
	html, err := render(bookedTmpl, b)
	if err != nil {
		return Message{}, err
	}
	return Message{To: b.ClientEmail, Subject: "Confirmação de Agendamento: " + b.ServiceName, HTML: html}, nil
}

// RenderAgenda builds the provider's daily summary.
func RenderAgenda(a events.Agenda) (Message, error) {
	a.Date = DisplayDate(a.Date)
	html, err := render(agendaTmpl, a)
	if err != nil {
		return Message{}, err
	}
	return Message{To: a.ProviderEmail, Subject: "Sua agenda para " + a.Date, HTML: html}, nil
}

func RenderReminder(r events.Reminder) (Message, error) {
	r.Date = DisplayDate(r.Date)
	html, err := render(reminderTmpl, r)
	if err != nil {
		return Message{}, err
	}
	return Message{To: r.ClientEmail, Subject: "Lembrete: " + r.ServiceName + " em " + r.Date, HTML: html}, nil
}
