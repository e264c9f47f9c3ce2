// Package questmcp exposes read and crank tools for the quest API to MCP clients.
package questmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/juno-intents/quest-escrow/internal/questapi"
	"github.com/juno-intents/quest-escrow/internal/questclient"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

const (
	ServerName    = "quest-escrow"
	ServerVersion = "1.0.0"
)

// Backend is satisfied by *questclient.Client.
type Backend interface {
	Config(ctx context.Context) (questapi.ConfigView, error)
	ListQuests(ctx context.Context, p questclient.ListQuestsParams) ([]questapi.QuestView, string, error)
	Quest(ctx context.Context, id uint64) (questapi.QuestView, error)
	Claim(ctx context.Context, ref quest.ClaimRef) (questapi.ClaimView, error)
	Expire(ctx context.Context, ref quest.ClaimRef) (questapi.ClaimView, error)
	AutoApprove(ctx context.Context, ref quest.ClaimRef) (quest.QuestCompleted, error)
}

type Server struct {
	backend Backend
	mcp     *server.MCPServer
	log     *slog.Logger
}

func New(backend Backend, log *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("questmcp: nil backend")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	s := &Server{
		backend: backend,
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(true)),
		log:     log,
	}

	s.mcp.AddTool(mcp.NewTool("get_config",
		mcp.WithDescription("Protocol configuration: authority, treasury, fee and burn rates, review windows"),
	), s.getConfig)

	s.mcp.AddTool(mcp.NewTool("list_quests",
		mcp.WithDescription("List quests in id order"),
		mcp.WithString("status", mcp.Description("active, claimed, completed, failed or cancelled")),
		mcp.WithString("creator", mcp.Description("Only quests created by this address")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of quests to return")),
		mcp.WithString("after_id", mcp.Description("Cursor returned as next_after_id by the previous call")),
	), s.listQuests)

	s.mcp.AddTool(mcp.NewTool("get_quest",
		mcp.WithDescription("Get one quest"),
		mcp.WithString("quest_id", mcp.Required(), mcp.Description("Quest id")),
	), s.getQuest)

	s.mcp.AddTool(mcp.NewTool("get_claim",
		mcp.WithDescription("Get the claim of one claimer on a quest"),
		mcp.WithString("quest_id", mcp.Required(), mcp.Description("Quest id")),
		mcp.WithString("claimer", mcp.Required(), mcp.Description("Claimer address")),
	), s.getClaim)

	s.mcp.AddTool(mcp.NewTool("expire_claim",
		mcp.WithDescription("Release an active claim whose proof deadline has passed; the stake goes to the quest creator"),
		mcp.WithString("quest_id", mcp.Required(), mcp.Description("Quest id")),
		mcp.WithString("claimer", mcp.Required(), mcp.Description("Claimer address")),
	), s.expireClaim)

	s.mcp.AddTool(mcp.NewTool("auto_approve",
		mcp.WithDescription("Pay out a submitted claim whose review window lapsed without a verdict"),
		mcp.WithString("quest_id", mcp.Required(), mcp.Description("Quest id")),
		mcp.WithString("claimer", mcp.Required(), mcp.Description("Claimer address")),
	), s.autoApprove)

	return s, nil
}

// MCPServer returns the underlying server for transport setup.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

func (s *Server) getConfig(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := s.backend.Config(ctx)
	if err != nil {
		return s.failed("get_config", err), nil
	}
	return jsonResult(cfg)
}

func (s *Server) listQuests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := questclient.ListQuestsParams{
		Status:  strings.TrimSpace(req.GetString("status", "")),
		AfterID: strings.TrimSpace(req.GetString("after_id", "")),
	}
	if raw := strings.TrimSpace(req.GetString("creator", "")); raw != "" {
		if !common.IsHexAddress(raw) {
			return mcp.NewToolResultError("creator must be a hex address"), nil
		}
		p.Creator = common.HexToAddress(raw)
	}
	if limit := req.GetInt("limit", 0); limit > 0 {
		p.Limit = limit
	}
	quests, next, err := s.backend.ListQuests(ctx, p)
	if err != nil {
		return s.failed("list_quests", err), nil
	}
	return jsonResult(map[string]any{
		"quests":        quests,
		"count":         len(quests),
		"next_after_id": next,
	})
}

func (s *Server) getQuest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := questID(req)
	if errRes != nil {
		return errRes, nil
	}
	q, err := s.backend.Quest(ctx, id)
	if err != nil {
		return s.failed("get_quest", err), nil
	}
	return jsonResult(q)
}

func (s *Server) getClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, errRes := claimRef(req)
	if errRes != nil {
		return errRes, nil
	}
	c, err := s.backend.Claim(ctx, ref)
	if err != nil {
		return s.failed("get_claim", err), nil
	}
	return jsonResult(c)
}

func (s *Server) expireClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, errRes := claimRef(req)
	if errRes != nil {
		return errRes, nil
	}
	c, err := s.backend.Expire(ctx, ref)
	if err != nil {
		return s.failed("expire_claim", err), nil
	}
	s.log.Info("claim expired via mcp", "claim", ref.String())
	return jsonResult(c)
}

func (s *Server) autoApprove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, errRes := claimRef(req)
	if errRes != nil {
		return errRes, nil
	}
	out, err := s.backend.AutoApprove(ctx, ref)
	if err != nil {
		return s.failed("auto_approve", err), nil
	}
	s.log.Info("claim auto-approved via mcp", "claim", ref.String())
	return jsonResult(out)
}

// failed reports err to the model as a tool error. API error codes are passed
// through so the caller can tell a lost race from a bad request.
func (s *Server) failed(tool string, err error) *mcp.CallToolResult {
	if code := questclient.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s", tool, code))
	}
	s.log.Warn("mcp tool failed", "tool", tool, "err", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

// questID reads quest_id, a decimal string so ids above 2^53 survive JSON.
func questID(req mcp.CallToolRequest) (uint64, *mcp.CallToolResult) {
	raw, err := req.RequireString("quest_id")
	if err != nil {
		return 0, mcp.NewToolResultError(err.Error())
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, mcp.NewToolResultError("quest_id must be a non-negative integer")
	}
	return id, nil
}

func claimRef(req mcp.CallToolRequest) (quest.ClaimRef, *mcp.CallToolResult) {
	id, errRes := questID(req)
	if errRes != nil {
		return quest.ClaimRef{}, errRes
	}
	claimer, err := req.RequireString("claimer")
	if err != nil {
		return quest.ClaimRef{}, mcp.NewToolResultError(err.Error())
	}
	claimer = strings.TrimSpace(claimer)
	if !common.IsHexAddress(claimer) {
		return quest.ClaimRef{}, mcp.NewToolResultError("claimer must be a hex address")
	}
	return quest.ClaimRef{QuestID: id, Claimer: common.HexToAddress(claimer)}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("questmcp: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
