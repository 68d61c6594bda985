package reminders

import (
	"bytes"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/benvon/smart-todo-reminders/internal/validation"
)

const (
	defaultTopic    = "Untitled todo"
	digestSubject   = "Todo Reminder"
	timerSubject    = "Your timer has ended"
	dateLayout      = "2006-01-02 (Monday)"
	instantLayout   = "Mon, 02 Jan 2006 15:04 MST"
	slotLayout      = "15:04 MST"
	markDone        = "✔"
	markOutstanding = "✘"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<div style="font-family: Arial, sans-serif; color: #333; padding: 20px; background: #f9f9f9; border-radius: 10px; max-width: 600px; margin: auto;">
<h2 style="color: #4CAF50; text-align: center;">Todo Reminder</h2>
<p>Hi {{.Name}}, here is what is planned for {{.Day}}.</p>
{{range .Todos}}<div style="background: #fff; padding: 15px; border-radius: 8px; margin-bottom: 12px;">
<h3 style="margin: 0 0 6px 0;">{{.Topic}}</h3>
<p style="margin: 0 0 8px 0; color: #777;">{{.Date}} &middot; {{.Done}}/{{.Total}} done</p>
{{if .Subtasks}}<ul style="padding-left: 20px; margin: 0;">
{{range .Subtasks}}<li style="margin: 5px 0;">{{.Mark}} {{.Title}}</li>
{{end}}</ul>{{else}}<p style="margin: 0;">No subtasks</p>{{end}}
</div>
{{end}}<p style="font-size: 14px; color: #777; text-align: center;">Stay productive<br/>Your Todo App</p>
</div>`))

var timerTemplate = template.Must(template.New("timer").Parse(`<div style="font-family: Arial, sans-serif; color: #333; padding: 20px; background: #f9f9f9; border-radius: 10px; max-width: 600px; margin: auto;">
<h2 style="color: #4CAF50; text-align: center;">Timer finished</h2>
<p>Hi {{.Name}}, {{if .Target}}the timer you set for {{.Target}}{{else}}your timer{{end}} has ended.</p>
<p style="font-size: 14px; color: #777; text-align: center;">Your Todo App</p>
</div>`))

type digestView struct {
	Name  string
	Day   string
	Todos []todoView
}

type todoView struct {
	Topic    string
	Date     string
	Done     int
	Total    int
	Subtasks []subtaskView
}

type subtaskView struct {
	Mark  string
	Title string
}

type timerView struct {
	Name   string
	Target string
}

// Composer renders notification subjects and HTML bodies.
// Composition never fails and never mutates the entities it reads.
type Composer struct {
	loc *time.Location
}

// NewComposer creates a composer that formats instants in loc
func NewComposer(loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{loc: loc}
}

// Digest renders the daily digest for one user. slot is the firing time of
// the cadence and appears in the subject, e.g. "Todo Reminder (10:00 PKT)".
func (c *Composer) Digest(user *models.User, todos []*models.Todo, slot time.Time) (string, string) {
	local := slot.In(c.loc)
	subject := digestSubject + " (" + local.Format(slotLayout) + ")"

	view := digestView{
		Name:  user.DisplayName(),
		Day:   local.Format(dateLayout),
		Todos: make([]todoView, 0, len(todos)),
	}
	for _, todo := range todos {
		if todo == nil {
			continue
		}
		view.Todos = append(view.Todos, c.todoView(todo))
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return subject, plainDigest(view)
	}
	return subject, buf.String()
}

// TimerExpired renders the expiry notice for one timer
func (c *Composer) TimerExpired(user *models.User, timer *models.Timer) (string, string) {
	view := timerView{Name: user.DisplayName()}
	if !timer.TargetTime.IsZero() {
		view.Target = timer.TargetTime.In(c.loc).Format(instantLayout)
	}

	var buf bytes.Buffer
	if err := timerTemplate.Execute(&buf, view); err != nil {
		what := "your timer"
		if view.Target != "" {
			what = "the timer you set for " + html.EscapeString(view.Target)
		}
		return timerSubject, "<p>Hi " + html.EscapeString(view.Name) + ", " + what + " has ended.</p>"
	}
	return timerSubject, buf.String()
}

func (c *Composer) todoView(todo *models.Todo) todoView {
	topic := validation.SanitizeText(todo.Topic)
	if topic == "" {
		topic = defaultTopic
	}
	v := todoView{
		Topic:    topic,
		Date:     todo.Date.In(c.loc).Format(dateLayout),
		Done:     todo.DoneCount(),
		Total:    len(todo.Subtasks),
		Subtasks: make([]subtaskView, 0, len(todo.Subtasks)),
	}
	for _, s := range todo.Subtasks {
		mark := markOutstanding
		if s.Done {
			mark = markDone
		}
		v.Subtasks = append(v.Subtasks, subtaskView{Mark: mark, Title: validation.SanitizeText(s.Title)})
	}
	return v
}

func plainDigest(view digestView) string {
	var b strings.Builder
	b.WriteString("<p>Hi " + html.EscapeString(view.Name) + ", here is what is planned for " + html.EscapeString(view.Day) + ".</p>")
	for _, todo := range view.Todos {
		b.WriteString("<h3>" + html.EscapeString(todo.Topic) + "</h3><ul>")
		for _, s := range todo.Subtasks {
			b.WriteString("<li>" + s.Mark + " " + html.EscapeString(s.Title) + "</li>")
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
