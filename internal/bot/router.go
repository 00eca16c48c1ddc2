// Package bot routes inbound chat events through the image pipeline:
// identity resolution, inbox cache, conversation state, the generation
// gateway and artifact storage.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/easel-bot/easel/internal/artifact"
	"github.com/easel-bot/easel/internal/config"
	"github.com/easel-bot/easel/internal/convo"
	"github.com/easel-bot/easel/internal/gemini"
	"github.com/easel-bot/easel/internal/identity"
	"github.com/easel-bot/easel/internal/inbox"
	"github.com/easel-bot/easel/internal/observability"
	"github.com/easel-bot/easel/internal/points"
)

const (
	msgGenerating      = "正在生成图片，请稍候..."
	msgEditing         = "正在编辑图片，请稍候..."
	msgContinuing      = "正在处理您的请求，请稍候..."
	msgMissingKey      = "请先在配置中设置图像生成API密钥"
	msgNoEditableImage = "未找到可编辑的图片，请先上传一张图片或使用生成图片命令"
	msgNoLastImage     = "未找到上一次生成的图片，请使用生成图片命令开始新的会话"
	msgGenerateFailed  = "图片生成失败，请稍后再试或修改提示词"
	msgEditFailed      = "图片编辑失败，请稍后再试或修改描述"
	msgContinueFailed  = "图片修改失败，请稍后再试或修改描述"
	msgSessionEnded    = "已结束图像生成对话，下次需要时请使用命令重新开始"
	msgNoSession       = "您当前没有活跃的图像生成对话"
	defaultGenCaption  = "我已生成了图片"
	defaultEditCaption = "我已编辑了图片"
)

// Router drives the session and cache state machine for one service
// instance. It holds no lock across the blocking remote call: state is read
// up front, the gateway is invoked, and results are written back
// last-write-wins.
type Router struct {
	enabled    bool
	missingKey bool
	autoEdit   bool

	generateCommands []string
	editCommands     []string
	exitCommands     []string

	pointsEnabled bool
	generateCost  int
	editCost      int

	resolver  *identity.Resolver
	inbox     *inbox.Cache
	convos    *convo.Store
	artifacts *artifact.Store
	gateway   gemini.Adapter
	ledger    points.Ledger
	metrics   *observability.Metrics
}

func NewRouter(
	cfg config.Config,
	resolver *identity.Resolver,
	inboxCache *inbox.Cache,
	convos *convo.Store,
	artifacts *artifact.Store,
	gateway gemini.Adapter,
	ledger points.Ledger,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		enabled:          cfg.Enabled,
		missingKey:       cfg.GeminiAPIKey == "" && cfg.GeminiMode == "live",
		autoEdit:         cfg.AutoEdit,
		generateCommands: cfg.GenerateCommands,
		editCommands:     cfg.EditCommands,
		exitCommands:     cfg.ExitCommands,
		pointsEnabled:    cfg.PointsEnabled,
		generateCost:     cfg.GenerateCost,
		editCost:         cfg.EditCost,
		resolver:         resolver,
		inbox:            inboxCache,
		convos:           convos,
		artifacts:        artifacts,
		gateway:          gateway,
		ledger:           ledger,
		metrics:          metrics,
	}
}

// Handle processes one inbound event and returns the replies to deliver.
// All failure paths end in a reply; nothing propagates to the transport.
func (r *Router) Handle(ctx context.Context, ev Event, notify Notify) []Reply {
	if !r.enabled {
		return nil
	}

	// Opportunistic expiry on every inbound event, ahead of any lookup.
	r.inbox.Sweep()
	r.convos.ExpireInactive()
	r.updateGauges()

	key := r.resolver.Resolve(ev.ChatID, ev.IsGroup, ev.Sender)

	switch ev.Kind {
	case EventImage:
		r.countEvent("image")
		// Cached silently: no reply either way.
		r.inbox.Put(key, ev.Images)
		r.updateGauges()
		return nil
	case EventText:
		r.countEvent("text")
		return r.handleText(ctx, ev, key, notify)
	default:
		r.countEvent("other")
		return nil
	}
}

func (r *Router) handleText(ctx context.Context, ev Event, key string, notify Notify) []Reply {
	content := strings.TrimSpace(ev.Text)
	if content == "" {
		return nil
	}

	for _, cmd := range r.exitCommands {
		if content == cmd {
			return r.handleExit(key)
		}
	}

	for _, cmd := range r.generateCommands {
		if strings.HasPrefix(content, cmd) {
			prompt := strings.TrimSpace(strings.TrimPrefix(content, cmd))
			return r.handleGenerate(ctx, key, cmd, prompt, notify)
		}
	}

	for _, cmd := range r.editCommands {
		if strings.HasPrefix(content, cmd) {
			prompt := strings.TrimSpace(strings.TrimPrefix(content, cmd))
			return r.handleEdit(ctx, ev, key, cmd, prompt, notify)
		}
	}

	if r.autoEdit && r.convos.Active(key) {
		return r.handleContinuation(ctx, key, content, notify)
	}

	// Not addressed to us.
	return nil
}

func (r *Router) handleExit(key string) []Reply {
	if r.convos.Clear(key) {
		r.countCommand("exit", "ok")
		r.updateGauges()
		return []Reply{textReply(msgSessionEnded)}
	}
	r.countCommand("exit", "no_session")
	return []Reply{textReply(msgNoSession)}
}

func (r *Router) handleGenerate(ctx context.Context, key, cmd, prompt string, notify Notify) []Reply {
	if prompt == "" {
		r.countCommand("generate", "user_error")
		return []Reply{textReply(fmt.Sprintf("请提供描述内容，格式：%s [描述]", cmd))}
	}
	if r.missingKey {
		r.countCommand("generate", "user_error")
		return []Reply{textReply(msgMissingKey)}
	}
	if reply, ok := r.checkPoints(ctx, key, r.generateCost); !ok {
		r.countCommand("generate", "no_points")
		return []Reply{reply}
	}

	send(notify, textReply(msgGenerating))

	history := r.convos.History(key)
	start := time.Now()
	result := r.gateway.Generate(ctx, prompt, history)
	r.observeLatency(start)

	if !result.HasImage() {
		r.countCommand("generate", "rejected")
		return []Reply{textReply(r.translateAll(result.Texts, msgGenerateFailed))}
	}

	// Persist every image part; remember which index maps to which file so
	// the reply can interleave text and image in response order.
	saved := make(map[int]string)
	var paths []string
	for i, img := range result.Images {
		if img == nil {
			continue
		}
		caption := defaultGenCaption
		if i < len(result.Texts) && result.Texts[i] != "" {
			caption = result.Texts[i]
		}
		path, err := r.artifacts.Save(artifact.OpGenerate, caption, img)
		if err != nil {
			log.Printf("bot: saving generated image failed: %v", err)
			continue
		}
		saved[i] = path
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		// Storage failure: report as if generation had failed, state untouched.
		r.countCommand("generate", "storage_error")
		return []Reply{textReply(msgGenerateFailed)}
	}

	r.convos.SetLastArtifact(key, paths...)

	turns := []convo.Turn{convo.TextTurn(convo.RoleUser, prompt)}
	for i, img := range result.Images {
		if img == nil {
			continue
		}
		path, ok := saved[i]
		if !ok {
			continue
		}
		caption := defaultGenCaption
		if i < len(result.Texts) && result.Texts[i] != "" {
			caption = result.Texts[i]
		}
		turns = append(turns, convo.Turn{
			Role:  convo.RoleModel,
			Parts: []convo.Part{{Text: caption}, {ImagePath: path}},
		})
	}
	r.convos.Append(key, turns...)
	r.chargePoints(ctx, key, r.generateCost, "generate")
	r.countCommand("generate", "ok")
	r.updateGauges()

	var replies []Reply
	for i := range result.Images {
		if i < len(result.Texts) && result.Texts[i] != "" {
			replies = append(replies, textReply(result.Texts[i]))
		}
		if path, ok := saved[i]; ok {
			replies = append(replies, imageReply(path))
		}
	}
	return replies
}

func (r *Router) handleEdit(ctx context.Context, ev Event, key, cmd, prompt string, notify Notify) []Reply {
	if prompt == "" {
		r.countCommand("edit", "user_error")
		return []Reply{textReply(fmt.Sprintf("请提供编辑描述，格式：%s [描述]", cmd))}
	}
	if r.missingKey {
		r.countCommand("edit", "user_error")
		return []Reply{textReply(msgMissingKey)}
	}
	if reply, ok := r.checkPoints(ctx, key, r.editCost); !ok {
		r.countCommand("edit", "no_points")
		return []Reply{reply}
	}

	// Prefer a freshly uploaded image from the inbox; fall back to the last
	// artifact this key produced. The inbox entry is referenced, not
	// consumed, so immediately-following edits need no re-upload.
	source, sourcePath := r.resolveEditSource(ev, key)
	if source == nil {
		r.countCommand("edit", "user_error")
		return []Reply{textReply(msgNoEditableImage)}
	}

	send(notify, textReply(msgEditing))
	return r.runEdit(ctx, key, "edit", prompt, source, sourcePath,
		artifact.OpEdit, "图片编辑成功！", msgEditFailed, true)
}

func (r *Router) handleContinuation(ctx context.Context, key, prompt string, notify Notify) []Reply {
	path, ok := r.convos.ResolveLastArtifact(key, r.artifacts.Exists)
	if !ok {
		r.countCommand("continue", "user_error")
		return []Reply{textReply(msgNoLastImage)}
	}
	source, err := r.artifacts.Read(path)
	if err != nil {
		log.Printf("bot: reading last artifact %s: %v", path, err)
		r.countCommand("continue", "user_error")
		return []Reply{textReply(msgNoLastImage)}
	}

	send(notify, textReply(msgContinuing))
	return r.runEdit(ctx, key, "continue", prompt, source, path,
		artifact.OpGenerate, "图片修改成功！", msgContinueFailed, false)
}

// resolveEditSource returns the bytes to edit and the path they live at.
// A cache hit is pinned to a temp artifact so history image references
// resolve at send time.
func (r *Router) resolveEditSource(ev Event, key string) ([]byte, string) {
	sender := key
	if ev.IsGroup {
		sender = strings.TrimPrefix(key, ev.ChatID+"_")
	}
	groupID := ""
	if ev.IsGroup {
		groupID = ev.ChatID
	}

	if data := r.inbox.Lookup(key, groupID, sender); data != nil {
		path, err := r.artifacts.Save(artifact.OpTemp, "", data)
		if err != nil {
			log.Printf("bot: pinning inbox image failed: %v", err)
			return nil, ""
		}
		r.convos.SetLastArtifact(key, path)
		return data, path
	}

	path, ok := r.convos.ResolveLastArtifact(key, r.artifacts.Exists)
	if !ok {
		return nil, ""
	}
	data, err := r.artifacts.Read(path)
	if err != nil {
		log.Printf("bot: reading last artifact %s: %v", path, err)
		return nil, ""
	}
	return data, path
}

func (r *Router) runEdit(
	ctx context.Context,
	key, command, prompt string,
	source []byte,
	sourcePath string,
	op artifact.Op,
	successDefault, failureMsg string,
	cost bool,
) []Reply {
	history := r.convos.History(key)
	start := time.Now()
	result := r.gateway.Edit(ctx, prompt, source, history)
	r.observeLatency(start)

	if result.Image == nil {
		r.countCommand(command, "rejected")
		if result.Text != "" {
			return []Reply{textReply(Translate(result.Text))}
		}
		return []Reply{textReply(failureMsg)}
	}

	replyText := result.Text
	if replyText == "" {
		replyText = successDefault
	}
	if len(history) <= 2 {
		replyText += fmt.Sprintf("（已开始图像对话，可以继续发送命令修改图片。需要结束时请发送\"%s\"）", r.exitCommands[0])
	}

	newPath, err := r.artifacts.Save(op, replyText, result.Image)
	if err != nil {
		log.Printf("bot: saving edited image failed: %v", err)
		r.countCommand(command, "storage_error")
		return []Reply{textReply(failureMsg)}
	}

	r.convos.SetLastArtifact(key, newPath)

	caption := result.Text
	if caption == "" {
		caption = defaultEditCaption
	}
	r.convos.Append(key,
		convo.Turn{Role: convo.RoleUser, Parts: []convo.Part{{Text: prompt}, {ImagePath: sourcePath}}},
		convo.Turn{Role: convo.RoleModel, Parts: []convo.Part{{Text: caption}, {ImagePath: newPath}}},
	)
	if cost {
		r.chargePoints(ctx, key, r.editCost, command)
	}
	r.countCommand(command, "ok")
	r.updateGauges()

	return []Reply{
		textReply(strings.TrimSpace(replyText)),
		imageReply(newPath),
	}
}

// checkPoints returns (reply, false) when metering blocks the operation.
// Ledger errors are advisory: log and let the call through.
func (r *Router) checkPoints(ctx context.Context, key string, cost int) (Reply, bool) {
	if !r.pointsEnabled || r.ledger == nil || cost <= 0 {
		return Reply{}, true
	}
	balance, err := r.ledger.Balance(ctx, key)
	if err != nil {
		log.Printf("bot: points balance check failed: %v", err)
		return Reply{}, true
	}
	if balance < cost {
		return textReply(fmt.Sprintf("积分不足：本次操作需要%d积分，当前剩余%d积分", cost, balance)), false
	}
	return Reply{}, true
}

func (r *Router) chargePoints(ctx context.Context, key string, cost int, reason string) {
	if !r.pointsEnabled || r.ledger == nil || cost <= 0 {
		return
	}
	if err := r.ledger.Charge(ctx, key, cost, reason); err != nil {
		if errors.Is(err, points.ErrInsufficient) {
			// Balance raced below the cost between check and charge; the
			// work is already done, so just log it.
			log.Printf("bot: post-hoc charge found insufficient points for %s", key)
			return
		}
		log.Printf("bot: charging points failed: %v", err)
	}
}

func (r *Router) translateAll(texts []string, fallback string) string {
	var translated []string
	for _, text := range texts {
		if text == "" {
			continue
		}
		if t := Translate(text); t != "" {
			translated = append(translated, t)
		}
	}
	if len(translated) == 0 {
		return fallback
	}
	return strings.Join(translated, "\n")
}

func (r *Router) countEvent(kind string) {
	if r.metrics != nil {
		r.metrics.EventsTotal.WithLabelValues(kind).Inc()
	}
}

func (r *Router) countCommand(command, outcome string) {
	if r.metrics != nil {
		r.metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
}

func (r *Router) observeLatency(start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveGatewayLatency(time.Since(start))
	}
}

func (r *Router) updateGauges() {
	if r.metrics != nil {
		r.metrics.ActiveConversations.Set(float64(r.convos.Len()))
		r.metrics.InboxEntries.Set(float64(r.inbox.Len()))
	}
}

func send(notify Notify, reply Reply) {
	if notify != nil {
		notify(reply)
	}
}
