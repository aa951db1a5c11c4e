package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCardRequired is returned for an empty card number.
	ErrCardRequired = errors.New("card number required")
	// ErrCardNotRegistered means no active binding exists for the card.
	ErrCardNotRegistered = errors.New("card not registered")
	// ErrStudentNotFound / ErrStaffNotFound mean a card binding points at a
	// person row that no longer exists.
	ErrStudentNotFound = errors.New("student not found")
	ErrStaffNotFound   = errors.New("teacher not found")
)

// Identity is a resolved active card binding.
type Identity struct {
	PersonID string
	Kind     Kind
}

// Person is the roster data classification needs: a display name and the
// assigned shift, if any.
type Person struct {
	ID    string
	Name  string
	Shift *Shift
}

// Punch is one immutable scan event. Every request with a resolved identity
// appends exactly one, regardless of how classification turns out.
type Punch struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id"`
	Kind       Kind      `json:"person_kind"`
	Date       string    `json:"date"`
	OccurredAt time.Time `json:"occurred_at"`
	DeviceID   *string   `json:"device_id,omitempty"`
	CardNumber string    `json:"card_number"`
}

// StudentDay is a student's daily attendance record. Exactly one exists per
// (student, date) and its status is never revised after creation.
type StudentDay struct {
	ID        string
	StudentID string
	Date      string
	Status    Status
	PunchedAt time.Time
	DeviceID  *string
	CreatedAt time.Time
}

// StaffDay is a staff member's daily record. It mutates at most once after
// creation, to set the punch-out time.
type StaffDay struct {
	ID          string
	StaffID     string
	Date        string
	Status      Status
	PunchInAt   time.Time
	PunchOutAt  *time.Time
	LateMinutes int
	DeviceID    *string
	CreatedAt   time.Time
}

// Staff punch actions reported to the device.
const (
	ActionPunchIn    = "punch_in"
	ActionPunchOut   = "punch_out"
	ActionAdditional = "additional_punch"
)

// CardResolver maps a card number to its active person binding.
type CardResolver interface {
	Resolve(ctx context.Context, cardNumber string) (Identity, error)
}

// DeviceLookup maps a reporting device's network address to a device id.
// Best-effort: nil means unknown device, which is never fatal.
type DeviceLookup interface {
	ByAddress(ctx context.Context, addr string) *string
}

// PunchLogger appends immutable punch events.
type PunchLogger interface {
	Append(ctx context.Context, p Punch) error
}

// Directory reads roster data for a resolved identity.
type Directory interface {
	Student(ctx context.Context, id string) (*Person, error)
	Staff(ctx context.Context, id string) (*Person, error)
}

// Store persists daily attendance records. The Create methods are atomic
// insert-or-return-existing: under concurrent punches for the same person and
// date exactly one caller observes created=true and every other caller gets
// the committed record back. SetPunchOut succeeds only while punch-out is
// still unset.
type Store interface {
	GetStudentDay(ctx context.Context, studentID, date string) (*StudentDay, error)
	CreateStudentDay(ctx context.Context, day StudentDay) (StudentDay, bool, error)
	GetStaffDay(ctx context.Context, staffID, date string) (*StaffDay, error)
	CreateStaffDay(ctx context.Context, day StaffDay) (StaffDay, bool, error)
	SetPunchOut(ctx context.Context, id string, at time.Time) (bool, error)
}

// Request is a validated inbound punch.
type Request struct {
	CardNumber string
	DeviceAddr string
	PunchedAt  time.Time // zero means receipt time
}

// Result describes what one punch did.
type Result struct {
	Kind        Kind
	PersonID    string
	Name        string
	Status      Status
	Action      string // staff only
	LateMinutes int
	PunchedAt   time.Time
	Date        string
	FirstPunch  bool
	Message     string
}

// Service orchestrates one punch end to end: device lookup, card resolution,
// punch logging, classification, and the attendance store mutation.
type Service struct {
	cards     CardResolver
	devices   DeviceLookup
	directory Directory
	punches   PunchLogger
	store     Store
	loc       *time.Location
	now       func() time.Time
}

// NewService wires the collaborators. loc is the school's timezone; punch
// dates are derived in it.
func NewService(cards CardResolver, devices DeviceLookup, directory Directory, punches PunchLogger, store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cards:     cards,
		devices:   devices,
		directory: directory,
		punches:   punches,
		store:     store,
		loc:       loc,
		now:       time.Now,
	}
}

// Punch handles one scan. The punch event is appended before the attendance
// write and its failure is swallowed: the log is a forensic trail and must
// never cost a reader its response. Store failures after that point are
// returned as-is; the caller may retry freely because the store enforces the
// one-record-per-day invariant.
func (s *Service) Punch(ctx context.Context, req Request) (Result, error) {
	if req.CardNumber == "" {
		return Result{}, ErrCardRequired
	}

	when := req.PunchedAt
	if when.IsZero() {
		when = s.now()
	}
	when = when.In(s.loc)
	date := when.Format("2006-01-02")

	var deviceID *string
	if req.DeviceAddr != "" {
		deviceID = s.devices.ByAddress(ctx, req.DeviceAddr)
	}

	ident, err := s.cards.Resolve(ctx, req.CardNumber)
	if err != nil {
		return Result{}, err
	}

	var person *Person
	if ident.Kind == KindStudent {
		person, err = s.directory.Student(ctx, ident.PersonID)
	} else {
		person, err = s.directory.Staff(ctx, ident.PersonID)
	}
	if err != nil {
		return Result{}, err
	}
	if person == nil {
		if ident.Kind == KindStudent {
			return Result{}, ErrStudentNotFound
		}
		return Result{}, ErrStaffNotFound
	}

	if err := s.punches.Append(ctx, Punch{
		ID:         uuid.NewString(),
		PersonID:   ident.PersonID,
		Kind:       ident.Kind,
		Date:       date,
		OccurredAt: when,
		DeviceID:   deviceID,
		CardNumber: req.CardNumber,
	}); err != nil {
		log.Printf("punch log append failed for card %s: %v", req.CardNumber, err)
	}

	if ident.Kind == KindStudent {
		return s.punchStudent(ctx, person, when, date, deviceID)
	}
	return s.punchStaff(ctx, person, when, date, deviceID)
}

func (s *Service) punchStudent(ctx context.Context, p *Person, when time.Time, date string, deviceID *string) (Result, error) {
	res := Result{Kind: KindStudent, PersonID: p.ID, Name: p.Name, PunchedAt: when, Date: date}

	existing, err := s.store.GetStudentDay(ctx, p.ID, date)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		res.Status = existing.Status
		res.Message = "Attendance already marked for today"
		return res, nil
	}

	status := Classify(p.Shift, At(when), KindStudent)
	day, created, err := s.store.CreateStudentDay(ctx, StudentDay{
		ID:        uuid.NewString(),
		StudentID: p.ID,
		Date:      date,
		Status:    status,
		PunchedAt: when,
		DeviceID:  deviceID,
	})
	if err != nil {
		return Result{}, err
	}

	res.Status = day.Status
	res.FirstPunch = created
	if created {
		res.Message = "Attendance marked: " + string(day.Status)
	} else {
		// lost the race to a concurrent punch; the committed record stands
		res.Message = "Attendance already marked for today"
	}
	return res, nil
}

func (s *Service) punchStaff(ctx context.Context, p *Person, when time.Time, date string, deviceID *string) (Result, error) {
	res := Result{Kind: KindStaff, PersonID: p.ID, Name: p.Name, PunchedAt: when, Date: date}

	existing, err := s.store.GetStaffDay(ctx, p.ID, date)
	if err != nil {
		return Result{}, err
	}

	if existing == nil {
		status := Classify(p.Shift, At(when), KindStaff)
		lateMin := LateMinutes(p.Shift, At(when), status)
		day, created, err := s.store.CreateStaffDay(ctx, StaffDay{
			ID:          uuid.NewString(),
			StaffID:     p.ID,
			Date:        date,
			Status:      status,
			PunchInAt:   when,
			LateMinutes: lateMin,
			DeviceID:    deviceID,
		})
		if err != nil {
			return Result{}, err
		}
		res.Status = day.Status
		res.LateMinutes = day.LateMinutes
		res.Action = ActionPunchIn
		res.FirstPunch = created
		if created {
			res.Message = "Punch in recorded"
		} else {
			// a concurrent punch-in committed first; report its record rather
			// than treating the same physical tap as a punch-out
			res.Message = "Already punched in for today"
		}
		return res, nil
	}

	res.Status = existing.Status
	res.LateMinutes = existing.LateMinutes
	if existing.PunchOutAt == nil {
		ok, err := s.store.SetPunchOut(ctx, existing.ID, when)
		if err != nil {
			return Result{}, err
		}
		if ok {
			res.Action = ActionPunchOut
			res.Message = "Punch out recorded"
			return res, nil
		}
	}
	res.Action = ActionAdditional
	res.Message = "Punch logged"
	return res, nil
}
