package ledger

// Status is a report's lifecycle state, derived by folding the ledger.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusValid   Status = "VALID"
	StatusUpdated Status = "UPDATED"
	StatusRevoked Status = "REVOKED"
)

// State is the result of folding the ledger for a queried reportId.
type State struct {
	Status          Status
	CurrentReportID string
	UpdatedChain    []string
}

// StateOf folds the entire ledger, left to right, to derive the lifecycle
// state of reportID. This is a pure function of the event sequence: the
// first PUBLISH of reportID moves it to VALID (a later PUBLISH of the same
// id is ignored — first-wins); a REVOKE whose reportId matches the current
// `latest` pointer is terminal; an UPDATE whose oldReportId matches
// `latest` advances `latest` to newReportId and appends it to the chain.
func (l *Ledger) StateOf(reportID string) (State, error) {
	events, err := l.All()
	if err != nil {
		return State{}, err
	}
	return foldState(events, reportID), nil
}

func foldState(events []Event, reportID string) State {
	status := StatusUnknown
	latest := reportID
	var chain []string

	for _, ev := range events {
		switch ev.Type {
		case EventPublish:
			if ev.ReportID == reportID && status == StatusUnknown {
				status = StatusValid
			}
		case EventRevoke:
			if ev.ReportID == latest {
				status = StatusRevoked
			}
		case EventUpdate:
			if ev.OldReportID == latest {
				status = StatusUpdated
				latest = ev.NewReportID
				chain = append(chain, latest)
			}
		}
	}

	return State{Status: status, CurrentReportID: latest, UpdatedChain: chain}
}

// LookupGrants returns every GRANT event for (reportID, toID), in append
// order. The resolver takes the last one: last-writer-wins.
func (l *Ledger) LookupGrants(reportID, toID string) ([]Event, error) {
	events, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if ev.Type == EventGrant && ev.ReportID == reportID && ev.To == toID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// LookupGrantsForReport returns every GRANT event for reportID, for any
// recipient, in append order.
func (l *Ledger) LookupGrantsForReport(reportID string) ([]Event, error) {
	events, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if ev.Type == EventGrant && ev.ReportID == reportID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetPublish returns the first PUBLISH_REPORT event for reportID, if any.
func (l *Ledger) GetPublish(reportID string) (*Event, error) {
	events, err := l.All()
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].Type == EventPublish && events[i].ReportID == reportID {
			return &events[i], nil
		}
	}
	return nil, nil
}
