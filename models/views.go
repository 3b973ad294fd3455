package models

import "time"

// ShareView is a FolderShare joined with the grantee's public profile.
type ShareView struct {
	User        UserSummary `json:"user"`
	AccessLevel AccessLevel `json:"access_level"`
	SharedAt    time.Time   `json:"shared_at"`
}

// FolderView is the read model returned to clients: the folder with its owner
// and grantees resolved, plus the caller's own role in it.
type FolderView struct {
	ID         uint        `json:"id"`
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	IsPinned   bool        `json:"is_pinned"`
	Owner      UserSummary `json:"owner"`
	SharedWith []ShareView `json:"shared_with"`
	Role       string      `json:"role,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewFolderView builds a view from a folder with SharedWith loaded. users
// must contain the owner and every grantee; missing entries render with
// only their id.
func NewFolderView(f Folder, users map[uint]User, viewerID uint) FolderView {
	v := FolderView{
		ID:         f.ID,
		Name:       f.Name,
		Color:      f.Color,
		IsPinned:   f.IsPinned,
		Owner:      summaryOf(users, f.UserID),
		SharedWith: make([]ShareView, 0, len(f.SharedWith)),
		Role:       f.Role(viewerID),
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
	for _, s := range f.SharedWith {
		v.SharedWith = append(v.SharedWith, ShareView{
			User:        summaryOf(users, s.UserID),
			AccessLevel: s.AccessLevel,
			SharedAt:    s.SharedAt,
		})
	}
	return v
}

func summaryOf(users map[uint]User, id uint) UserSummary {
	if u, ok := users[id]; ok {
		return u.Summary()
	}
	return UserSummary{ID: id}
}
