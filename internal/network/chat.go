package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/command"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/protocol"
)

// Ширина строки чата classic клиента
const lineWidth = 63

// normalMessageID отправитель для служебных строк без префикса
const normalMessageID = 127

// Области доставки сообщений чата
const (
	scopeChat    = "chat"
	scopeWorld   = "world"
	scopeStaff   = "staff"
	scopeWhisper = "whisper"
)

// Оформление сообщений мира и персонала
const (
	worldMessageColour = authz.ColourYellow
	staffMessagePrefix = authz.ColourRed + "#"
)

// ircColours соответствие цветов IRC (\x03NN) кодам игры
var ircColours = map[string]string{
	"00": "&f", "01": "&0", "02": "&1", "03": "&2",
	"04": "&c", "05": "&4", "06": "&5", "07": "&6",
	"08": "&e", "09": "&a", "10": "&3", "11": "&b",
	"12": "&9", "13": "&d", "14": "&8", "15": "&7",
}

// escapes отменяют сигил в начале строки
var escapes = []struct{ from, to string }{
	{"./", " /"},
	{".@", " @"},
	{".!", " !"},
	{".#", " #"},
}

// printable допустимы только печатные ASCII символы
func printable(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] < 0x20 || text[i] > 0x7e {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// transformMessage применяет преобразования текста по порядку:
// %x в &x, цвета IRC, экранирование сигилов, %$rnd.
func transformMessage(text string) string {
	b := []byte(text)
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '%' && isHexDigit(b[i+1]) {
			b[i] = '&'
		}
	}
	text = string(b)

	if strings.Contains(text, "\x03") {
		var sb strings.Builder
		for i := 0; i < len(text); i++ {
			if text[i] == '\x03' && i+2 < len(text) {
				if code, ok := ircColours[text[i+1:i+3]]; ok {
					sb.WriteString(code)
					i += 2
					continue
				}
			}
			sb.WriteByte(text[i])
		}
		text = sb.String()
	}

	for _, e := range escapes {
		if strings.HasPrefix(text, e.from) {
			text = e.to + text[len(e.from):]
			break
		}
	}
	return strings.ReplaceAll(text, "%$rnd", "&$rnd")
}

// trailingColour: предпоследний символ '&' означает код цвета в конце строки
func trailingColour(text string) bool {
	switch {
	case len(text) >= 2:
		return text[len(text)-2] == '&'
	case len(text) == 1:
		return text[0] == '&'
	}
	return false
}

// defuseColours: если первые 51 символ без пробелов заканчиваются кодом
// цвета, все '&' заменяются на '*'
func defuseColours(text string) string {
	if len(text) <= 51 {
		return text
	}
	head := strings.ReplaceAll(text[:51], " ", "")
	if len(head) >= 2 && head[len(head)-2] == '&' {
		return strings.ReplaceAll(text, "&", "*")
	}
	return text
}

// splitMessage разбивает текст на кадры вида prefix+строка не длиннее 63 символов.
// Слова упаковываются в строку, слишком длинные режутся; пустые кадры не возвращаются.
func splitMessage(prefix, message string) []string {
	width := lineWidth - len(prefix)
	if width < 1 {
		width = 1
	}

	var lines []string
	line := ""
	for _, word := range strings.Fields(message) {
		if len(line)+1+len(word) < width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		for len(word) > width {
			lines = append(lines, word[:width])
			word = word[width:]
		}
		line = word
	}
	lines = append(lines, line)

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimLeft(l, " ")
		if len(l) >= 2 && l[len(l)-2] == '&' {
			l = l[:len(l)-2]
		}
		if l == "" {
			continue
		}
		out = append(out, prefix+l)
	}
	return out
}

// wrapList склеивает элементы через ", " в строки не длиннее 63 символов
func wrapList(items []string) []string {
	var lines []string
	line := ""
	for _, item := range items {
		piece := item
		if line != "" {
			piece = ", " + item
		}
		if line != "" && len(line)+len(piece)+1 > lineWidth {
			lines = append(lines, line+",")
			piece = item
			line = ""
		}
		line += piece
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// handleMessage входящее сообщение чата
func (s *Session) handleMessage(text string) {
	displayName := s.Username()
	named, ok := s.hook(hooks.ChatUsername, hooks.Args{"client": s, "username": displayName})
	if !ok {
		return
	}
	if v, set := named.Text(); set {
		displayName = v
	}
	sent, ok := s.hook(hooks.MessageSent, hooks.Args{"client": s, "message": text})
	if !ok {
		return
	}

	if !s.Identified() {
		s.Kick("Provide an authentication before chatting.")
		return
	}
	if !printable(strings.ToLower(text)) {
		s.Kick("Invalid characters are not allowed!")
		return
	}

	text = transformMessage(text)
	if trailingColour(text) {
		s.SendServerMessage("You cannot use a color at the end of a message")
		return
	}
	text = defuseColours(text)
	if text == "" {
		return
	}

	switch text[0] {
	case '/':
		s.runCommand(text)
	case '@':
		s.whisper(text[1:])
	case '!':
		if len(text) < 2 {
			s.SendServerMessage("Please include a message to send.")
			return
		}
		s.broadcastChat(scopeWorld, displayName, text[1:])
	case '#':
		if len(text) > 1 {
			s.broadcastChat(scopeStaff, displayName, text[1:])
			return
		}
		if s.Actor().Has(authz.Mod) {
			s.SendServerMessage("Please include a message to send.")
			return
		}
		s.plainChat(sent, displayName, text)
	default:
		s.plainChat(sent, displayName, text)
	}
}

func (s *Session) plainChat(sent hooks.Result, displayName, text string) {
	if s.server.registry.IsSilenced(s.Username()) {
		s.SendServerMessage("You are silenced and cannot speak.")
		return
	}
	// Любое мнение messageSent, кроме Continue, глушит обычный чат
	if sent.Kind != hooks.Continue {
		return
	}
	s.broadcastChat(scopeChat, displayName, text)
}

func (s *Session) broadcastChat(scope, displayName, text string) {
	srv := s.server
	kind := taskChat
	switch scope {
	case scopeWorld:
		kind = taskWorldMessage
	case scopeStaff:
		kind = taskStaffMessage
	}
	w := s.World()
	srv.enqueue(task{
		kind: kind, origin: s, world: w, id: s.ID(),
		name: displayName, colour: s.Colour(), text: text,
	})

	worldID := ""
	if w != nil {
		worldID = w.ID()
	}
	srv.publish(eventbus.TypeChat, eventbus.ChatEvent{
		Username: s.Username(), World: worldID, Text: text, Scope: scope,
	})
}

func (s *Session) runCommand(text string) {
	name, parts := command.Parse(text)
	if !s.server.commands.Has(name) {
		s.SendServerMessage(fmt.Sprintf("Command %s does not exist.", strings.TrimLeft(parts[0], "/")))
		return
	}
	err := s.server.commands.Dispatch(name, parts, command.SourceUser, s)
	switch {
	case err == nil:
	case errors.Is(err, command.ErrCommandPanic):
		s.SendServerMessage(internalErrorMessage)
	default:
		s.logger.Warn("Команда %s от %s завершилась ошибкой: %v", name, s.Username(), err)
		s.SendServerMessage(internalErrorMessage)
	}
}

func (s *Session) whisper(rest string) {
	rest = strings.TrimSpace(rest)
	idx := strings.IndexByte(rest, ' ')
	if idx < 0 || strings.TrimSpace(rest[idx+1:]) == "" {
		s.SendServerMessage("Please include a username and a message to send.")
		return
	}
	target, text := rest[:idx], strings.TrimSpace(rest[idx+1:])

	recipient := s.server.SessionByName(target)
	if recipient == nil {
		s.SendServerMessage(fmt.Sprintf("%s is currently offline.", target))
		return
	}

	colour := s.Colour()
	s.server.enqueue(task{kind: taskWhisper, origin: s, target: recipient, name: s.Username(), colour: colour, text: text})
	s.sendWhisper(colour, s.Username(), text)

	w := s.World()
	worldID := ""
	if w != nil {
		worldID = w.ID()
	}
	s.server.publish(eventbus.TypeChat, eventbus.ChatEvent{
		Username: s.Username(), World: worldID, Text: text, Scope: scopeWhisper, Target: recipient.Username(),
	})
}

// SendServerMessage сообщение от сервера (id -1) без разбивки
func (s *Session) SendServerMessage(msg string) {
	s.send(protocol.Message(protocol.SelfID, msg))
}

// SendNormalMessage сообщение без префикса, разбитое по словам
func (s *Session) SendNormalMessage(msg string) {
	s.sendLines(normalMessageID, "", msg)
}

// SendSplitServerMessage длинное серверное сообщение, разбитое по словам
func (s *Session) SendSplitServerMessage(msg string) {
	s.SendNormalMessage(msg)
}

// SendServerList выводит список через запятую, перенося строки
func (s *Session) SendServerList(items []string) {
	for _, line := range wrapList(items) {
		s.SendServerMessage(line)
	}
}

func (s *Session) sendWhisper(colour, from, text string) {
	s.SendNormalMessage(fmt.Sprintf("%s@%s%s: %s%s", authz.ColourYellow, colour, from, authz.ColourWhite, text))
}

func (s *Session) sendLines(id int, prefix, msg string) {
	for _, frame := range splitMessage(prefix, msg) {
		s.send(protocol.Message(id, frame))
	}
}

// deliverChat показывает сообщение чата этой сессии, если получатель
// не заглушил отправителя и messageReceived не запретил
func (s *Session) deliverChat(t task) {
	if t.origin != nil && s.Muted(t.origin.Username()) {
		return
	}
	res := s.server.hooks.Run(hooks.MessageReceived, hooks.Args{
		"client": s, "from": t.name, "message": t.text, "scope": scopeOf(t.kind),
	})
	// Упавший обработчик уже залогирован; получателю сообщение не показываем
	if res.Err != nil || res.Kind == hooks.Veto {
		return
	}
	text := t.text
	if v, ok := res.Text(); ok {
		text = v
	}

	prefix := t.colour + t.name + ":" + authz.ColourWhite + " "
	switch t.kind {
	case taskWorldMessage:
		prefix = worldMessageColour + "!" + prefix
	case taskStaffMessage:
		prefix = staffMessagePrefix + prefix
	}
	s.sendLines(t.id, prefix, text)
}

func scopeOf(k taskKind) string {
	switch k {
	case taskWorldMessage:
		return scopeWorld
	case taskStaffMessage:
		return scopeStaff
	case taskWhisper:
		return scopeWhisper
	}
	return scopeChat
}
