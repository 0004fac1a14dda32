package toolserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolroute/internal/members"
)

type listArgs struct {
	Role   string `json:"role,omitempty" jsonschema:"exact role to match"`
	Search string `json:"search,omitempty" jsonschema:"case-insensitive substring of name or email"`
	Limit  int    `json:"limit,omitempty" jsonschema:"page size, default 10"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of records to skip"`
	Sort   string `json:"sort,omitempty" jsonschema:"column to sort by, default created_at"`
	Order  string `json:"order,omitempty" jsonschema:"asc or desc, default desc"`
}

type memberIDArgs struct {
	MemberID string `json:"member_id" jsonschema:"member id"`
}

type createArgs struct {
	Name   string `json:"name" jsonschema:"full name"`
	Email  string `json:"email" jsonschema:"email address"`
	Role   string `json:"role,omitempty" jsonschema:"default user"`
	Status string `json:"status,omitempty" jsonschema:"default active"`
}

type updateArgs struct {
	MemberID string `json:"member_id" jsonschema:"member id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (s *Server) listMembers(ctx context.Context, _ *mcpsdk.CallToolRequest, in listArgs) (*mcpsdk.CallToolResult, any, error) {
	f := members.Filter{
		Role:   in.Role,
		Search: in.Search,
		Limit:  in.Limit,
		Offset: in.Offset,
		Sort:   in.Sort,
		Desc:   true,
	}
	switch strings.ToLower(in.Order) {
	case "", "desc":
	case "asc":
		f.Desc = false
	default:
		return nil, nil, fmt.Errorf("order must be asc or desc, got %q", in.Order)
	}
	list, err := s.members.List(ctx, f)
	if err != nil {
		return nil, nil, memberError("list", err)
	}
	return jsonResult(list)
}

func (s *Server) getMember(ctx context.Context, _ *mcpsdk.CallToolRequest, in memberIDArgs) (*mcpsdk.CallToolResult, any, error) {
	m, err := s.members.Get(ctx, in.MemberID)
	if err != nil {
		return nil, nil, memberError("get", err)
	}
	if m == nil {
		return textResult("null"), nil, nil
	}
	return jsonResult(m)
}

func (s *Server) createMember(ctx context.Context, _ *mcpsdk.CallToolRequest, in createArgs) (*mcpsdk.CallToolResult, any, error) {
	m := &members.Member{Name: in.Name, Email: in.Email, Role: in.Role, Status: in.Status}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, nil, memberError("create", err)
	}
	return jsonResult(m)
}

func (s *Server) updateMember(ctx context.Context, _ *mcpsdk.CallToolRequest, in updateArgs) (*mcpsdk.CallToolResult, any, error) {
	m, err := s.members.Update(ctx, in.MemberID, members.Patch{
		Name:   in.Name,
		Email:  in.Email,
		Role:   in.Role,
		Status: in.Status,
	})
	if err != nil {
		return nil, nil, memberError("update", err)
	}
	return jsonResult(m)
}

func (s *Server) deleteMember(ctx context.Context, _ *mcpsdk.CallToolRequest, in memberIDArgs) (*mcpsdk.CallToolResult, any, error) {
	m, err := s.members.Delete(ctx, in.MemberID)
	if err != nil {
		return nil, nil, memberError("delete", err)
	}
	return jsonResult(m)
}

// memberError turns store errors into tool errors. Store sentinels pass
// through unchanged; anything else is prefixed with the operation.
func memberError(op string, err error) error {
	switch {
	case errors.Is(err, members.ErrNotFound),
		errors.Is(err, members.ErrDuplicateEmail),
		errors.Is(err, members.ErrInvalid):
		return err
	}
	return fmt.Errorf("%s member failed: %w", op, err)
}
