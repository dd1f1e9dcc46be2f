package matches

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/internal/notifications"
	"github.com/foodbridge/foodbridge-backend/internal/profiles"
	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/metrics"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

const activeMatchIndex = "ux_donation_matches_active"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type changeEmitter interface {
	EmitChange(ctx context.Context, tx *gorm.DB, change payloads.ChangeEvent, actor *outbox.ActorRef) error
}

type donationRegistry interface {
	MarkClaimed(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error)
	Release(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, bool, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error)
}

type profileReader interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (enums.UserRole, error)
	Contacts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]profiles.Contact, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, t notifications.Transition) ([]models.Notification, error)
	Deliver(ctx context.Context, notes []models.Notification)
}

// Service is the match coordinator.
type Service interface {
	Claim(ctx context.Context, input ClaimInput) (*models.Match, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Match, error)
	Reorder(ctx context.Context, input ReorderInput) (*models.Match, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	Get(ctx context.Context, matchID, actorID uuid.UUID, role enums.UserRole) (*View, error)
	Counts(ctx context.Context, actorID uuid.UUID, role enums.UserRole) (map[enums.MatchStatus]int64, error)
}

// Deps groups the collaborators of the coordinator.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Outbox    changeEmitter
	Donations donationRegistry
	Profiles  profileReader
	Notifier  dispatcher
	Metrics   *metrics.MatchMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    changeEmitter
	donations donationRegistry
	profiles  profileReader
	notifier  dispatcher
	metrics   *metrics.MatchMetrics
	logg      *logger.Logger
	now       func() time.Time
	goAsync   func(func())
}

// NewService wires the match coordinator.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "matches repository required")
	case deps.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case deps.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case deps.Donations == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "donation registry required")
	case deps.Profiles == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profile reader required")
	case deps.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      deps.Repo,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		donations: deps.Donations,
		profiles:  deps.Profiles,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
		goAsync:   func(f func()) { go f() },
	}, nil
}

// Claim reserves an available, unexpired donation for the calling recipient.
// Exactly one of any set of concurrent claims on a donation succeeds; the
// others get Conflict.
func (s *service) Claim(ctx context.Context, input ClaimInput) (match *models.Match, err error) {
	defer func() { s.record(enums.MatchStatusPending, err) }()

	if input.DonationID == uuid.Nil {
		return nil, pkgerrors.Validation("donation_id", "donation id required")
	}
	if err := s.checkRole(ctx, input.ActorID, input.ActorRole, noState, enums.MatchStatusPending); err != nil {
		return nil, err
	}
	claim, _ := transitionFor(noState, enums.MatchStatusPending)
	if !claim.allows(input.ActorRole) {
		return nil, pkgerrors.InvalidTransition(string(noState), string(enums.MatchStatusPending), string(input.ActorRole))
	}

	ctx = s.logg.WithDonationID(ctx, input.DonationID)
	actor := outbox.Actor(input.ActorID, input.ActorRole)

	var notes []models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		donation, err := s.donations.MarkClaimed(ctx, tx, input.DonationID, actor)
		if err != nil {
			return err
		}
		match, notes, err = s.open(ctx, tx, *donation, input.ActorID, enums.MatchActionClaim, input.ActorRole, noState, actor)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "claim donation")
	}

	s.logg.Info(s.logg.WithMatchID(ctx, match.ID), "donation claimed")
	s.deliver(ctx, notes)
	return match, nil
}

// Transition moves a match along the lifecycle table. Target pending on a
// cancelled match is a reorder.
func (s *service) Transition(ctx context.Context, input TransitionInput) (match *models.Match, err error) {
	if input.Target == enums.MatchStatusPending {
		return s.Reorder(ctx, ReorderInput{MatchID: input.MatchID, ActorID: input.ActorID, ActorRole: input.ActorRole})
	}
	defer func() { s.record(input.Target, err) }()

	if input.MatchID == uuid.Nil {
		return nil, pkgerrors.Validation("match_id", "match id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.Validation("status", "unknown match status")
	}
	if err := s.checkRole(ctx, input.ActorID, input.ActorRole, "", input.Target); err != nil {
		return nil, err
	}

	ctx = s.logg.WithMatchID(ctx, input.MatchID)
	actor := outbox.Actor(input.ActorID, input.ActorRole)

	var notes []models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, donation, err := s.load(ctx, repo, input.MatchID)
		if err != nil {
			return err
		}
		if !canAct(*current, *donation, input.ActorID, input.ActorRole, input.Target) {
			return pkgerrors.NotFound("match")
		}
		r, err := resolve(current.Status, input.Target, input.ActorRole)
		if err != nil {
			return err
		}
		if !isParty(r, *current, *donation, input.ActorID, input.ActorRole) {
			return pkgerrors.InvalidTransition(string(current.Status), string(input.Target), string(input.ActorRole))
		}

		guard, fields := s.effects(r, input.ActorID, input.ActorRole)
		affected, err := repo.CompareAndSet(ctx, current.ID, r.From, r.To, guard, fields, s.now())
		if err != nil {
			return db.Classify(err, "update match")
		}
		if affected == 0 {
			return pkgerrors.Conflict("race_lost", "match changed before "+string(r.Action)).
				With("status", current.Status).With("target", r.To)
		}

		switch r.Action {
		case enums.MatchActionComplete:
			if donation, err = s.donations.MarkCompleted(ctx, tx, donation.ID, actor); err != nil {
				return err
			}
		case enums.MatchActionCancel:
			if released, ok, err := s.donations.Release(ctx, tx, donation.ID, actor); err != nil {
				return err
			} else if ok {
				donation = released
			}
		}

		match, err = repo.FindByID(ctx, current.ID)
		if err != nil {
			return db.Classify(err, "reload match")
		}
		if err := s.outbox.EmitChange(ctx, tx, ChangeFor(*match, *donation, enums.ChangeOpUpdate, r), actor); err != nil {
			return err
		}
		notes, err = s.notifier.Dispatch(ctx, tx, notifications.Transition{
			Action:    r.Action,
			Match:     *match,
			Donation:  *donation,
			ActorID:   input.ActorID,
			ActorRole: input.ActorRole,
			From:      r.From,
			To:        r.To,
		})
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "transition match")
	}

	s.logg.Info(s.logg.WithField(ctx, "status", match.Status), "match transitioned")
	s.deliver(ctx, notes)
	return match, nil
}

// Reorder re-claims the donation of a cancelled match as a new pending match.
func (s *service) Reorder(ctx context.Context, input ReorderInput) (match *models.Match, err error) {
	defer func() { s.record(enums.MatchStatusPending, err) }()

	if input.MatchID == uuid.Nil {
		return nil, pkgerrors.Validation("match_id", "match id required")
	}
	if err := s.checkRole(ctx, input.ActorID, input.ActorRole, "", enums.MatchStatusPending); err != nil {
		return nil, err
	}

	ctx = s.logg.WithMatchID(ctx, input.MatchID)
	actor := outbox.Actor(input.ActorID, input.ActorRole)

	var notes []models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		previous, donation, err := s.load(ctx, repo, input.MatchID)
		if err != nil {
			return err
		}
		if !visibleTo(*previous, *donation, input.ActorID, input.ActorRole) {
			return pkgerrors.NotFound("match")
		}
		r, err := resolve(previous.Status, enums.MatchStatusPending, input.ActorRole)
		if err != nil {
			return err
		}
		if !isParty(r, *previous, *donation, input.ActorID, input.ActorRole) {
			return pkgerrors.InvalidTransition(string(previous.Status), string(enums.MatchStatusPending), string(input.ActorRole))
		}

		claimed, err := s.donations.MarkClaimed(ctx, tx, donation.ID, actor)
		if err != nil {
			return err
		}
		match, notes, err = s.open(ctx, tx, *claimed, input.ActorID, enums.MatchActionReorder, input.ActorRole, enums.MatchStatusCancelled, actor)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "reorder match")
	}

	s.logg.Info(s.logg.WithField(ctx, "reorder_match_id", match.ID.String()), "match reordered")
	s.deliver(ctx, notes)
	return match, nil
}

// open inserts a pending match on a donation the caller already claimed.
func (s *service) open(ctx context.Context, tx *gorm.DB, donation models.Donation, recipientID uuid.UUID, action enums.MatchAction, role enums.UserRole, from enums.MatchStatus, actor *outbox.ActorRef) (*models.Match, []models.Notification, error) {
	now := s.now()
	match := &models.Match{
		ID:          uuid.New(),
		DonationID:  donation.ID,
		RecipientID: recipientID,
		Status:      enums.MatchStatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.WithTx(tx).Create(ctx, match); err != nil {
		if db.IsUniqueViolation(err, activeMatchIndex) {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "donation already has an active match").With("kind", "active_match")
		}
		return nil, nil, db.Classify(err, "create match")
	}

	r := rule{From: from, To: enums.MatchStatusPending, Action: action}
	if err := s.outbox.EmitChange(ctx, tx, ChangeFor(*match, donation, enums.ChangeOpInsert, r), actor); err != nil {
		return nil, nil, err
	}
	notes, err := s.notifier.Dispatch(ctx, tx, notifications.Transition{
		Action:    action,
		Match:     *match,
		Donation:  donation,
		ActorID:   recipientID,
		ActorRole: role,
		From:      from,
		To:        enums.MatchStatusPending,
	})
	if err != nil {
		return nil, nil, err
	}
	return match, notes, nil
}

func (s *service) effects(r rule, actorID uuid.UUID, role enums.UserRole) (casGuard, map[string]any) {
	now := s.now()
	switch r.Action {
	case enums.MatchActionPickup:
		return casGuard{VolunteerUnset: true}, map[string]any{
			"volunteer_id":       actorID,
			"actual_pickup_time": now,
		}
	case enums.MatchActionComplete:
		guard := casGuard{}
		if role == enums.UserRoleVolunteer {
			guard.VolunteerID = &actorID
		}
		return guard, map[string]any{"delivery_time": now}
	case enums.MatchActionCancel:
		return casGuard{}, map[string]any{"cancelled_by": actorID}
	default:
		return casGuard{}, nil
	}
}

func (s *service) load(ctx context.Context, repo Repository, matchID uuid.UUID) (*models.Match, *models.Donation, error) {
	match, err := repo.FindByID(ctx, matchID)
	if err != nil {
		return nil, nil, db.Classify(err, "match not found")
	}
	donation, err := repo.FindDonation(ctx, match.DonationID)
	if err != nil {
		return nil, nil, db.Classify(err, "load match donation")
	}
	return match, donation, nil
}

// checkRole re-validates the claimed role against the stored profile.
func (s *service) checkRole(ctx context.Context, actorID uuid.UUID, claimed enums.UserRole, from, to enums.MatchStatus) error {
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if from == "" {
		from = "unknown"
	}
	stored, err := s.profiles.RoleOf(ctx, actorID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.InvalidTransition(string(from), string(to), string(claimed))
		}
		return err
	}
	if stored != claimed {
		return pkgerrors.InvalidTransition(string(from), string(to), string(claimed))
	}
	return nil
}

func (s *service) deliver(ctx context.Context, notes []models.Notification) {
	if len(notes) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.goAsync(func() { s.notifier.Deliver(detached, notes) })
}

func (s *service) record(target enums.MatchStatus, err error) {
	s.metrics.IncTransition(string(target), outcomeOf(err))
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeInvalidTransition, pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeUnauthorized:
		return metrics.OutcomeInvalid
	case pkgerrors.CodeStoreUnavailable:
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	q, err := s.query(input.ActorID, input.ActorRole, input.Status, input.Queue)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(input.Limit)
	q.Limit = pagination.LimitWithBuffer(limit)
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		q.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, db.Classify(err, "list matches")
	}
	page, next := pagination.Trim(rows, limit, func(m models.Match) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	views, err := s.views(ctx, page)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: views, Cursor: next}, nil
}

func (s *service) Get(ctx context.Context, matchID, actorID uuid.UUID, role enums.UserRole) (*View, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	match, donation, err := s.load(ctx, s.repo, matchID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(*match, *donation, actorID, role) {
		return nil, pkgerrors.NotFound("match")
	}
	views, err := s.compose(ctx, []models.Match{*match}, map[uuid.UUID]models.Donation{donation.ID: *donation})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Counts groups the actor's visible matches by status.
func (s *service) Counts(ctx context.Context, actorID uuid.UUID, role enums.UserRole) (map[enums.MatchStatus]int64, error) {
	q, err := s.query(actorID, role, "", false)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, q)
	if err != nil {
		return nil, db.Classify(err, "count matches")
	}
	return counts, nil
}

func (s *service) query(actorID uuid.UUID, role enums.UserRole, status string, queue bool) (listQuery, error) {
	if actorID == uuid.Nil {
		return listQuery{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !role.IsValid() {
		return listQuery{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	q := listQuery{ActorID: actorID, Role: role, Queue: queue && role == enums.UserRoleVolunteer}
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := enums.ParseMatchStatus(status)
		if err != nil {
			return listQuery{}, pkgerrors.Validation("status", err.Error())
		}
		q.Status = &parsed
	}
	return q, nil
}

func (s *service) views(ctx context.Context, rows []models.Match) ([]View, error) {
	if len(rows) == 0 {
		return []View{}, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.DonationID)
	}
	donations, err := s.repo.FindDonations(ctx, ids)
	if err != nil {
		return nil, db.Classify(err, "load match donations")
	}
	return s.compose(ctx, rows, donations)
}

func (s *service) compose(ctx context.Context, rows []models.Match, donations map[uuid.UUID]models.Donation) ([]View, error) {
	people := make([]uuid.UUID, 0, len(rows)*3)
	for _, row := range rows {
		people = append(people, row.RecipientID, donations[row.DonationID].DonorID)
		if row.VolunteerID != nil {
			people = append(people, *row.VolunteerID)
		}
	}
	contacts, err := s.profiles.Contacts(ctx, people)
	if err != nil {
		return nil, err
	}
	lookup := func(id uuid.UUID) *profiles.Contact {
		if c, ok := contacts[id]; ok {
			return &c
		}
		return nil
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		donation, ok := donations[row.DonationID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "match references a missing donation")
		}
		view := View{
			Match:     row,
			Donation:  summaryOf(donation),
			Donor:     lookup(donation.DonorID),
			Recipient: lookup(row.RecipientID),
		}
		if row.VolunteerID != nil {
			view.Volunteer = lookup(*row.VolunteerID)
		}
		views = append(views, view)
	}
	return views, nil
}

// ChangeFor builds the change event for a match row. Parties see their
// matches; confirmed matches without a volunteer are broadcast to volunteers.
func ChangeFor(match models.Match, donation models.Donation, op enums.ChangeOp, r rule) payloads.ChangeEvent {
	owners := []uuid.UUID{match.RecipientID, donation.DonorID}
	if match.VolunteerID != nil {
		owners = append(owners, *match.VolunteerID)
	}
	change := payloads.ChangeEvent{
		Table:      enums.AggregateMatch,
		RowID:      match.ID,
		Op:         op,
		RowVersion: match.Version,
		Status:     string(match.Status),
		OwnerIDs:   owners,
		Match: &payloads.MatchFacts{
			DonationID:  match.DonationID,
			RecipientID: match.RecipientID,
			VolunteerID: match.VolunteerID,
			Action:      string(r.Action),
		},
	}
	if r.From != noState && r.From != "" {
		change.Match.FromStatus = string(r.From)
	}
	if match.Status == enums.MatchStatusConfirmed && match.VolunteerID == nil {
		change.AudienceRoles = []enums.UserRole{enums.UserRoleVolunteer}
	}
	// The queue shrinks when a volunteer takes a match; tell the others.
	if r.Action == enums.MatchActionPickup {
		change.AudienceRoles = []enums.UserRole{enums.UserRoleVolunteer}
	}
	return change
}
