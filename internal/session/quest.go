package session

// Objective is a single step toward completing the active quest.
type Objective struct {
	Description string `json:"description"`
	Met         bool   `json:"met"`
}

// Rewards standardizes what completing a quest grants.
type Rewards struct {
	XP       int      `json:"xp"`
	Currency int      `json:"currency"`
	ItemIDs  []string `json:"item_ids,omitempty"`
}

// QuestState tracks the session's quest progress.
type QuestState struct {
	ActiveQuestID string          `json:"active_quest_id,omitempty"`
	Title         string          `json:"title,omitempty"`
	Objectives    []Objective     `json:"objectives,omitempty"`
	Flags         map[string]bool `json:"flags,omitempty"`
	Rewards       Rewards         `json:"rewards"`
}

// Complete reports whether every objective has been met.
func (q QuestState) Complete() bool {
	if len(q.Objectives) == 0 {
		return false
	}
	for _, obj := range q.Objectives {
		if !obj.Met {
			return false
		}
	}
	return true
}

func (q QuestState) clone() QuestState {
	out := q
	if q.Objectives != nil {
		out.Objectives = make([]Objective, len(q.Objectives))
		copy(out.Objectives, q.Objectives)
	}
	if q.Flags != nil {
		out.Flags = make(map[string]bool, len(q.Flags))
		for k, v := range q.Flags {
			out.Flags[k] = v
		}
	}
	if q.Rewards.ItemIDs != nil {
		out.Rewards.ItemIDs = make([]string, len(q.Rewards.ItemIDs))
		copy(out.Rewards.ItemIDs, q.Rewards.ItemIDs)
	}
	return out
}
