package rally

import "time"

// Wire types mirror the raw WSAPI response shapes. They are converted
// into the cache-facing Artifact form before anything else sees them.

type wireArtifact struct {
	ObjectID      int64      `json:"ObjectID"`
	FormattedID   string     `json:"FormattedID"`
	Type          string     `json:"_type"`
	Name          string     `json:"Name"`
	Description   string     `json:"Description"`
	Notes         string     `json:"Notes"`
	ScheduleState string     `json:"ScheduleState"`
	Priority      string     `json:"Priority"`
	Component     StringList `json:"Component"`
	Environment   string     `json:"Environment"`
	Blocked       bool       `json:"Blocked"`
	BlockedReason string     `json:"BlockedReason"`
	CreationDate  string     `json:"CreationDate"`
	PlanEstimate  *float64   `json:"PlanEstimate"`

	AcceptanceCriteria string     `json:"AcceptanceCriteria"`
	Milestones         StringList `json:"Milestones"`
	ClientNames        StringList `json:"c_ClientNames"`

	Project   *wireNamed `json:"Project"`
	FlowState *wireNamed `json:"FlowState"`

	CreatedBy *wireUser `json:"CreatedBy"`
	Owner     *wireUser `json:"Owner"`

	Release   *wireRelease   `json:"Release"`
	Iteration *wireIteration `json:"Iteration"`

	// Defect extension fields; empty on other artifact types.
	ExpectedResults  string `json:"ExpectedResults"`
	ActualResults    string `json:"ActualResults"`
	RootCause        string `json:"RootCause"`
	SiteURL          string `json:"c_SiteURL"`
	StepsToReproduce string `json:"StepsToReproduce"`

	Parent *wireArtifact `json:"Parent"`

	Discussion  wireCollection `json:"Discussion"`
	Attachments wireCollection `json:"Attachments"`
	ChildrenRef wireCollection `json:"Children"`
	UserStories wireCollection `json:"UserStories"`
	Tasks       wireCollection `json:"Tasks"`
}

type wireNamed struct {
	Name string `json:"Name"`
}

type wireUser struct {
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	DisplayName  string `json:"DisplayName"`
	UserName     string `json:"UserName"`
	EmailAddress string `json:"EmailAddress"`
}

func (u *wireUser) convert() *User {
	if u == nil {
		return nil
	}
	name := u.DisplayName
	if name == "" {
		name = u.UserName
	}
	return &User{
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Name:         name,
		EmailAddress: u.EmailAddress,
	}
}

type wireRelease struct {
	Name             string     `json:"Name"`
	ReleaseStartDate *time.Time `json:"ReleaseStartDate"`
	ReleaseDate      *time.Time `json:"ReleaseDate"`
}

type wireIteration struct {
	Name      string     `json:"Name"`
	StartDate *time.Time `json:"StartDate"`
	EndDate   *time.Time `json:"EndDate"`
}

type wireDiscussion struct {
	User         *wireUser `json:"User"`
	Text         string    `json:"Text"`
	CreationDate string    `json:"CreationDate"`
}

type wireAttachment struct {
	ObjectID     int64     `json:"ObjectID"`
	Name         string    `json:"Name"`
	Description  string    `json:"Description"`
	CreationDate string    `json:"CreationDate"`
	User         *wireUser `json:"User"`
}

// wireCollection is a lazy WSAPI collection reference.
type wireCollection struct {
	Ref   string `json:"_ref"`
	Count int    `json:"Count"`
}

// convert maps the wire shape onto the cached Artifact shape. Lazy
// collections are left empty; the client hydrates them separately.
func (w *wireArtifact) convert() *Artifact {
	a := &Artifact{
		ObjectID:           w.ObjectID,
		FormattedID:        w.FormattedID,
		Type:               w.Type,
		Name:               w.Name,
		Description:        w.Description,
		Notes:              w.Notes,
		ScheduleState:      w.ScheduleState,
		Priority:           w.Priority,
		Component:          w.Component,
		Environment:        w.Environment,
		Blocked:            w.Blocked,
		BlockedReason:      w.BlockedReason,
		CreationDate:       w.CreationDate,
		PlanEstimate:       w.PlanEstimate,
		AcceptanceCriteria: w.AcceptanceCriteria,
		Milestones:         w.Milestones,
		ClientNames:        w.ClientNames,
		CreatedBy:          w.CreatedBy.convert(),
		Owner:              w.Owner.convert(),
	}

	if w.Project != nil {
		a.Project = w.Project.Name
	}
	if w.FlowState != nil {
		a.State = w.FlowState.Name
	}
	if w.Release != nil {
		a.Release = &Release{
			Name:             w.Release.Name,
			ReleaseStartDate: w.Release.ReleaseStartDate,
			ReleaseDate:      w.Release.ReleaseDate,
		}
	}
	if w.Iteration != nil {
		a.Iteration = &Iteration{
			Name:      w.Iteration.Name,
			StartDate: w.Iteration.StartDate,
			EndDate:   w.Iteration.EndDate,
		}
	}
	if w.Type == "Defect" {
		d := DefectDetails{
			ExpectedResults:  w.ExpectedResults,
			ActualResults:    w.ActualResults,
			RootCause:        w.RootCause,
			SiteURL:          w.SiteURL,
			StepsToReproduce: w.StepsToReproduce,
		}
		if d != (DefectDetails{}) {
			a.Defect = &d
		}
	}
	if w.Parent != nil {
		a.Parent = w.Parent.convert()
	}

	return a
}
