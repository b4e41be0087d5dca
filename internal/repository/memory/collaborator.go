package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
)

// Directory is a fixed personnel roster.
type Directory struct {
	mu        sync.RWMutex
	employees []payroll.EmployeeProfile
	Err       error
}

func NewDirectory(employees ...payroll.EmployeeProfile) *Directory {
	return &Directory{employees: employees}
}

func (d *Directory) Add(employees ...payroll.EmployeeProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees = append(d.employees, employees...)
}

func (d *Directory) ListActiveEmployees(ctx context.Context) ([]payroll.EmployeeProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]payroll.EmployeeProfile(nil), d.employees...), nil
}

func (d *Directory) GetEmployee(ctx context.Context, id string) (payroll.EmployeeProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return payroll.EmployeeProfile{}, d.Err
	}
	for _, emp := range d.employees {
		if emp.ID == id {
			return emp, nil
		}
	}
	return payroll.EmployeeProfile{}, payroll.ErrEmployeeNotFound
}

// AttendanceFeed serves attendance records; Delay simulates a slow upstream.
type AttendanceFeed struct {
	mu      sync.RWMutex
	records []payroll.AttendanceRecord
	Delay   time.Duration
	Err     error
}

func NewAttendanceFeed(records ...payroll.AttendanceRecord) *AttendanceFeed {
	return &AttendanceFeed{records: records}
}

func (f *AttendanceFeed) Add(records ...payroll.AttendanceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
}

func (f *AttendanceFeed) GetAttendance(ctx context.Context, start, end time.Time) ([]payroll.AttendanceRecord, error) {
	if err := wait(ctx, f.Delay); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.Err != nil {
		return nil, f.Err
	}

	var out []payroll.AttendanceRecord
	for _, rec := range f.records {
		if !rec.Date.Before(start) && rec.Date.Before(end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DutyFeed serves duty roster records; Delay simulates a slow upstream.
type DutyFeed struct {
	mu      sync.RWMutex
	records []payroll.DutyRecord
	Delay   time.Duration
	Err     error
}

func NewDutyFeed(records ...payroll.DutyRecord) *DutyFeed {
	return &DutyFeed{records: records}
}

func (f *DutyFeed) Add(records ...payroll.DutyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
}

func (f *DutyFeed) GetDuties(ctx context.Context, start, end time.Time) ([]payroll.DutyRecord, error) {
	if err := wait(ctx, f.Delay); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.Err != nil {
		return nil, f.Err
	}

	var out []payroll.DutyRecord
	for _, rec := range f.records {
		if !rec.Date.Before(start) && rec.Date.Before(end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyCall is one recorded Notifier invocation.
type NotifyCall struct {
	UserIDs []string
	Title   string
	Message string
	Kind    payroll.NotificationKind
}

// Notifier records notifications instead of delivering them.
type Notifier struct {
	mu    sync.Mutex
	calls []NotifyCall
	Err   error
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(ctx context.Context, userIDs []string, title, message string, kind payroll.NotificationKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.calls = append(n.calls, NotifyCall{
		UserIDs: append([]string(nil), userIDs...),
		Title:   title,
		Message: message,
		Kind:    kind,
	})
	return nil
}

func (n *Notifier) SetErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Err = err
}

// Calls returns recorded notifications, optionally restricted to one kind.
func (n *Notifier) Calls(kinds ...payroll.NotificationKind) []NotifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []NotifyCall
	for _, c := range n.calls {
		if len(kinds) == 0 || containsKind(kinds, c.Kind) {
			out = append(out, c)
		}
	}
	return out
}

func containsKind(kinds []payroll.NotificationKind, kind payroll.NotificationKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Ledger keeps posted expenses keyed by idempotency key.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]payroll.ExpenseEntry
	posts   int
	Err     error
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]payroll.ExpenseEntry)}
}

func (l *Ledger) PostExpense(ctx context.Context, entry payroll.ExpenseEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.posts++
	if _, ok := l.entries[entry.IdempotencyKey]; ok {
		return nil
	}
	l.entries[entry.IdempotencyKey] = entry
	return nil
}

func (l *Ledger) SetErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Err = err
}

// Entries returns stored expenses ordered by key.
func (l *Ledger) Entries() []payroll.ExpenseEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]payroll.ExpenseEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.entries[k])
	}
	return out
}

// Posts counts every PostExpense call that reached the ledger, including replays.
func (l *Ledger) Posts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.posts
}

// ProofStore keeps uploaded transfer proofs in memory.
type ProofStore struct {
	mu    sync.Mutex
	files map[string][]byte
	Err   error
}

func NewProofStore() *ProofStore {
	return &ProofStore{files: make(map[string][]byte)}
}

func (p *ProofStore) UploadTransferProof(ctx context.Context, slipID string, file io.Reader, filename string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("payroll/proofs/%s/%d%s", slipID, len(p.files)+1, filepath.Ext(filename))
	p.files[ref] = buf.Bytes()
	return ref, nil
}

func (p *ProofStore) File(ref string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.files[ref]
	return b, ok
}

func (p *ProofStore) DeleteTransferProof(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, ref)
	return nil
}

func (p *ProofStore) TransferProofURL(ref string) string {
	return "memory://" + ref
}
