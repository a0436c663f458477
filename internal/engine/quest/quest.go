// Package quest applies quest creation and status transitions and folds
// completion rewards into a single gold and XP delta per batch.
package quest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"narrative-companion/internal/model"
)

// DefaultStagger separates per-quest notifications in one batch.
const DefaultStagger = 300 * time.Millisecond

// Outcome is the result of one batch.
type Outcome struct {
	Created       []string
	Updated       []string
	GoldDelta     int
	XPDelta       int
	Notifications []model.Notification
	Lines         []string
}

// Aggregator applies quest batches.
type Aggregator struct {
	newID   func() string
	stagger time.Duration
}

// NewAggregator creates an aggregator with random ids and the default stagger.
func NewAggregator() *Aggregator {
	return &Aggregator{newID: uuid.NewString, stagger: DefaultStagger}
}

// NewAggregatorWithIDs creates an aggregator with a custom id source.
func NewAggregatorWithIDs(newID func() string, stagger time.Duration) *Aggregator {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Aggregator{newID: newID, stagger: stagger}
}

// Create adds new active quests. Seeds whose title matches an existing
// quest, case-insensitively, are skipped.
func (a *Aggregator) Create(quests []model.Quest, characterID string, seeds []model.QuestSeed) ([]model.Quest, Outcome) {
	out := cloneQuests(quests)
	var res Outcome

	for _, s := range seeds {
		title := strings.TrimSpace(s.Title)
		if title == "" || indexByTitle(out, title) >= 0 {
			continue
		}

		q := model.Quest{
			ID:          a.newID(),
			CharacterID: characterID,
			Title:       title,
			Description: s.Description,
			Status:      model.QuestActive,
		}
		for _, text := range s.Objectives {
			if text = strings.TrimSpace(text); text != "" {
				q.Objectives = append(q.Objectives, model.Objective{Text: text})
			}
		}
		if s.Reward != nil {
			r := *s.Reward
			q.DefaultReward = &r
		}

		out = append(out, q)
		res.Created = append(res.Created, q.ID)
		res.Lines = append(res.Lines, "New quest: "+title)
		res.Notifications = append(res.Notifications, a.notification(len(res.Notifications),
			"New quest: "+title, q.ID, model.QuestActive))
	}
	return out, res
}

// Transition applies status transitions. Unknown titles are ignored.
// A quest pays its reward once; completing it again, even after it was
// reopened, grants nothing.
func (a *Aggregator) Transition(quests []model.Quest, transitions []model.QuestTransition) ([]model.Quest, Outcome) {
	out := cloneQuests(quests)
	var res Outcome

	for _, tr := range transitions {
		idx := indexByTitle(out, tr.Title)
		if idx < 0 {
			continue
		}
		status := strings.ToLower(strings.TrimSpace(tr.Status))
		if !validStatus(status) {
			continue
		}

		q := out[idx]
		if status == model.QuestCompleted && q.Status == model.QuestCompleted {
			continue
		}

		if len(tr.ObjectivesOverride) > 0 {
			q.Objectives = append([]model.Objective(nil), tr.ObjectivesOverride...)
		}
		q.Status = status

		var msg string
		switch status {
		case model.QuestCompleted:
			for i := range q.Objectives {
				q.Objectives[i].Completed = true
			}
			var xp, gold int
			if !q.Rewarded {
				xp, gold = reward(tr, q.DefaultReward)
				q.Rewarded = true
			}
			res.XPDelta += xp
			res.GoldDelta += gold
			msg = "Quest completed: " + q.Title + rewardSuffix(xp, gold)
		case model.QuestFailed:
			msg = "Quest failed: " + q.Title
		default:
			msg = "Quest updated: " + q.Title
		}

		out[idx] = q
		res.Updated = append(res.Updated, q.ID)
		res.Lines = append(res.Lines, msg)
		res.Notifications = append(res.Notifications, a.notification(len(res.Notifications), msg, q.ID, status))
	}
	return out, res
}

func (a *Aggregator) notification(i int, msg, questID, status string) model.Notification {
	return model.Notification{
		Kind:    model.NotifyQuest,
		Message: msg,
		Delay:   time.Duration(i) * a.stagger,
		Data:    map[string]any{"questId": questID, "status": status},
	}
}

func reward(tr model.QuestTransition, def *model.Reward) (xp, gold int) {
	if tr.XPAward != nil {
		xp = *tr.XPAward
	} else if def != nil {
		xp = def.XP
	}
	if tr.GoldAward != nil {
		gold = *tr.GoldAward
	} else if def != nil {
		gold = def.Gold
	}
	return xp, gold
}

func rewardSuffix(xp, gold int) string {
	var parts []string
	if xp != 0 {
		parts = append(parts, fmt.Sprintf("%+d XP", xp))
	}
	if gold != 0 {
		parts = append(parts, fmt.Sprintf("%+d gold", gold))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func validStatus(s string) bool {
	return s == model.QuestActive || s == model.QuestCompleted || s == model.QuestFailed
}

func indexByTitle(quests []model.Quest, title string) int {
	title = strings.ToLower(strings.TrimSpace(title))
	for i := range quests {
		if strings.ToLower(strings.TrimSpace(quests[i].Title)) == title {
			return i
		}
	}
	return -1
}

func cloneQuests(quests []model.Quest) []model.Quest {
	if quests == nil {
		return nil
	}
	out := make([]model.Quest, len(quests))
	for i, q := range quests {
		q.Objectives = append([]model.Objective(nil), q.Objectives...)
		out[i] = q
	}
	return out
}
