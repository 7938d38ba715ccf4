package chat

import (
	"context"
	"errors"

	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
)

// toMessageDTO is the only place a stored message becomes client-visible, so
// soft-deleted content and attachments are dropped here
func toMessageDTO(msg models.Message, sender *models.ChatUser, reactions []models.Reaction) models.MessageDTO {
	dto := models.MessageDTO{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		SenderID:  msg.SenderID,
		Sender:    sender,
		IsEdited:  msg.IsEdited,
		IsDeleted: msg.IsDeleted(),
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
		Reactions: groupReactions(reactions),
	}

	if msg.IsDeleted() {
		dto.Content = models.DeletedPlaceholder
		return dto
	}

	dto.Content = msg.Content
	dto.AttachmentURL = msg.AttachmentURL
	dto.AttachmentType = msg.AttachmentType
	dto.AttachmentName = msg.AttachmentName
	return dto
}

// groupReactions tallies reactions per emoji, in order of first use
func groupReactions(reactions []models.Reaction) []models.ReactionGroup {
	groups := []models.ReactionGroup{}
	index := make(map[string]int)

	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, models.ReactionGroup{Emoji: r.Emoji, UserIDs: []int64{}})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}

	return groups
}

// messageDTOs maps a batch with one user lookup and one reaction lookup
func messageDTOs(ctx context.Context, st store.Store, tenantID int64, msgs []models.Message) ([]models.MessageDTO, error) {
	dtos := make([]models.MessageDTO, 0, len(msgs))
	if len(msgs) == 0 {
		return dtos, nil
	}

	ids := make([]int64, 0, len(msgs))
	senderIDs := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		senderIDs = append(senderIDs, m.SenderID)
	}

	users, err := st.FindUsers(ctx, tenantID, uniqueIDs(senderIDs))
	if err != nil {
		return nil, err
	}
	reactions, err := st.ListReactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		var sender *models.ChatUser
		if u, ok := users[m.SenderID]; ok {
			sender = &u
		}
		dtos = append(dtos, toMessageDTO(m, sender, reactions[m.ID]))
	}
	return dtos, nil
}

func messageDTO(ctx context.Context, st store.Store, tenantID int64, msg models.Message) (models.MessageDTO, error) {
	dtos, err := messageDTOs(ctx, st, tenantID, []models.Message{msg})
	if err != nil {
		return models.MessageDTO{}, err
	}
	return dtos[0], nil
}

// threadDTO builds the summary of a thread as seen by viewerID
func threadDTO(ctx context.Context, st store.Store, tenantID int64, thread models.Thread, viewerID int64, unread int) (*models.ThreadDTO, error) {
	participants, err := st.ListParticipants(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]int64, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}
	users, err := st.FindUsers(ctx, tenantID, userIDs)
	if err != nil {
		return nil, err
	}

	dto := &models.ThreadDTO{
		ID:           thread.ID,
		IsGroup:      thread.IsGroup,
		Title:        thread.Title,
		CreatedBy:    thread.CreatedBy,
		CreatedAt:    thread.CreatedAt,
		UpdatedAt:    thread.UpdatedAt,
		Participants: make([]models.ParticipantDTO, 0, len(participants)),
		UnreadCount:  unread,
	}

	for _, p := range participants {
		u, ok := users[p.UserID]
		if !ok {
			u = models.ChatUser{ID: p.UserID, TenantID: tenantID, PresenceStatus: models.PresenceInactive}
		}
		dto.Participants = append(dto.Participants, models.ParticipantDTO{
			ChatUser:   u,
			IsBlocked:  p.IsBlocked,
			IsMarked:   p.IsMarked,
			LastReadAt: p.LastReadAt,
		})
		if p.UserID == viewerID {
			dto.IsMarked = p.IsMarked
			dto.IsBlocked = p.IsBlocked
		}
	}

	last, err := st.LastMessage(ctx, thread.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		lastDTO, err := messageDTO(ctx, st, tenantID, *last)
		if err != nil {
			return nil, err
		}
		dto.LastMessage = &lastDTO
	}

	return dto, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
