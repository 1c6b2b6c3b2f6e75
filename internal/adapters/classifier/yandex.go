package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"letter-assist/internal/domain"
)

type chatClient interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// YandexGPT анализирует письма и генерирует варианты ответа через YandexGPT.
type YandexGPT struct {
	client chatClient
	model  string
	now    func() time.Time
}

var _ domain.Classifier = (*YandexGPT)(nil)

// NewYandexGPT создаёт классификатор писем.
func NewYandexGPT(client chatClient, model string) *YandexGPT {
	if model == "" {
		model = "yandexgpt"
	}
	return &YandexGPT{client: client, model: model, now: time.Now}
}

const analyzeSystemPrompt = `Вы — профессиональный ИИ-ассистент для обработки деловой корреспонденции банка. Ваша задача — провести глубокий анализ входящего письма.

ВАЖНО: В банке всего 2 отдела:
- Юридический отдел — согласование требуется если: регуляторный запрос от государственных органов, жалоба с угрозой судебного разбирательства, запрос содержит юридические риски, упоминаются законы/нормативные акты, запрос конфиденциальной информации о третьих лицах
- Отдел маркетинга — согласование требуется если: партнерское предложение о сотрудничестве, запрос от СМИ, вопросы о тарифах/продуктах/акциях, коммерческие предложения

Если не требуется согласование — ответ может быть отправлен напрямую (простые технические вопросы, типовые запросы информации).`

const generateSystemPrompt = `Вы — профессиональный ИИ-ассистент для обработки деловой корреспонденции банка. Ваша задача — автоматически сгенерировать 4 варианта качественного ответа, полностью соответствующих корпоративным стандартам, юридическим нормам и регуляторным требованиям.

В банке всего 2 отдела:
- Юридический отдел — согласование для регуляторных запросов, жалоб с юридическими рисками, запросов с упоминанием законов
- Отдел маркетинга — согласование для партнерских предложений, запросов от СМИ, вопросов о тарифах/продуктах

Вы должны сгенерировать 4 варианта ответа:

1. СТРОГИЙ ОФИЦИАЛЬНЫЙ (strict_official) - для государственных органов, регуляторов, судов:
   - Пассивные конструкции: "Банком установлено", "Принято решение"
   - Избегать местоимения "мы"
   - Юридическая терминология
   - Обязательные ссылки на законы

2. ДЕЛОВОЙ КОРПОРАТИВНЫЙ (corporate) - для партнеров, корпоративных клиентов:
   - Активные конструкции: "Мы рады сообщить"
   - Фокус на партнерстве
   - Умеренная официальность

3. КЛИЕНТООРИЕНТИРОВАННЫЙ (client_oriented) - для физических лиц, жалоб:
   - Эмпатия и понимание
   - Простые объяснения без жаргона
   - Персонализация
   - Позитивный тон

4. КРАТКИЙ ИНФОРМАЦИОННЫЙ (brief_info) - для простых запросов:
   - Максимальная лаконичность
   - Структурированная информация (списки)
   - Без лишних слов

КРИТИЧЕСКИ ВАЖНО:
Используйте: "В соответствии с...", "Согласно положениям...", "Стремимся обеспечить"
НИКОГДА: "Всегда", "Никогда", "Гарантируем 100%", признание вины без оговорок

Верните ТОЛЬКО JSON объект без markdown разметки, без дополнительного текста.`

// Analyze классифицирует письмо. Неразборчивый ответ модели не валит
// операцию: возвращается безопасный результат с выставленным Fallback.
func (y *YandexGPT) Analyze(ctx context.Context, subject, body string) (domain.Analysis, error) {
	prompt := fmt.Sprintf(`Проанализируй входящее письмо и верни результат СТРОГО в формате JSON.

Тема письма: %s

Текст письма:
%s

Верни JSON со следующей структурой:
{
  "classification": {
    "type": "один из: info_request, complaint, regulatory, partnership, approval_request, notification, other",
    "description": "краткое описание типа письма"
  },
  "sla_hours": число_часов_на_ответ,
  "priority": число_от_1_до_3,
  "formality_level": "один из: strict_official, corporate, neutral, client_oriented",
  "required_departments": ["список", "отделов"],
  "extracted_entities": {
    "request_summary": "суть запроса",
    "sender_details": "информация об отправителе",
    "legal_references": ["ссылки на законы"],
    "mentioned_documents": ["упомянутые документы"],
    "contact_info": "контактная информация"
  },
  "risks": [
    {
      "level": "high/medium/low",
      "description": "описание риска",
      "recommendation": "рекомендация"
    }
  ],
  "approval_route": [
    {
      "department": "название отдела",
      "reason": "зачем нужно согласование",
      "check_points": ["что проверить"]
    }
  ],
  "controversial_points": ["список спорных моментов"]
}

Возвращай ТОЛЬКО валидный JSON, без дополнительного текста.`, subject, body)

	text, err := y.client.Complete(ctx, y.model, analyzeSystemPrompt, prompt)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("анализ письма: %w", err)
	}

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &analysis); err != nil {
		return fallbackAnalysis(), nil
	}
	return analysis, nil
}

// fallbackAnalysis возвращает безопасные значения, когда модель вернула
// неразборчивый ответ.
func fallbackAnalysis() domain.Analysis {
	return domain.Analysis{
		Classification: domain.Classification{Type: domain.TypeOther, Description: "Ошибка анализа"},
		SLAHours:       domain.DefaultSLAHours,
		Priority:       domain.PriorityMedium,
		Formality:      domain.FormalityNeutral,
		Fallback:       true,
	}
}

// GenerateResponses генерирует четыре стилевых варианта ответа.
// Если модель вернула неполный либо неразборчивый JSON, подставляются
// шаблонные заготовки, чтобы оператор всегда имел черновики.
func (y *YandexGPT) GenerateResponses(ctx context.Context, subject, body string, analysis domain.Analysis) (domain.DraftResponses, error) {
	prompt := fmt.Sprintf(`На основе входящего письма сгенерируй 4 полноценных варианта ответа.

Тема письма: %s

Текст письма:
%s

Анализ письма:
- Тип: %s
- Суть запроса: %s
- Количество рисков: %d

Верни JSON в формате:
{
  "strict_official": "Полный текст строгого официального ответа для государственных органов и регуляторов",
  "corporate": "Полный текст делового корпоративного ответа для партнёров и корпоративных клиентов",
  "client_oriented": "Полный текст клиентоориентированного ответа для физических лиц и жалоб",
  "brief_info": "Полный текст краткого информационного ответа для простых запросов"
}

Каждый вариант должен:
- Быть полным законченным письмом
- Отвечать на ВСЕ вопросы входящего письма
- Быть юридически безопасным
- Соответствовать стилю своей категории

Верни ТОЛЬКО валидный JSON без markdown блоков.`,
		subject, body, describeType(analysis), describeSummary(analysis), len(analysis.Risks))

	text, err := y.client.Complete(ctx, y.model, generateSystemPrompt, prompt)
	if err != nil {
		return y.fallbackDrafts(subject, analysis), nil
	}

	cleaned := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(text), "```json", ""), "```", "")
	var drafts domain.DraftResponses
	if err := json.Unmarshal([]byte(extractJSON(cleaned)), &drafts); err != nil {
		return y.fallbackDrafts(subject, analysis), nil
	}
	if drafts.StrictOfficial == "" || drafts.Corporate == "" || drafts.ClientOriented == "" || drafts.BriefInfo == "" {
		return y.fallbackDrafts(subject, analysis), nil
	}
	return drafts, nil
}

func describeType(analysis domain.Analysis) string {
	if analysis.Classification.Description != "" {
		return analysis.Classification.Description
	}
	return "не определён"
}

func describeSummary(analysis domain.Analysis) string {
	if analysis.Entities != nil && analysis.Entities.RequestSummary != "" {
		return analysis.Entities.RequestSummary
	}
	return "не указана"
}

func (y *YandexGPT) fallbackDrafts(subject string, analysis domain.Analysis) domain.DraftResponses {
	sla := analysis.SLAHours
	if sla <= 0 {
		sla = domain.DefaultSLAHours
	}
	date := y.now().Format("02.01.2006")
	return domain.DraftResponses{
		StrictOfficial: fmt.Sprintf("Уважаемый отправитель,\n\nВаше обращение от %s по теме %q принято к рассмотрению. Ответ будет предоставлен в установленные сроки.\n\nС уважением,\nБанк", date, subject),
		Corporate:      "Добрый день,\n\nБлагодарим за обращение. Ваш запрос принят в работу и будет обработан в ближайшее время.\n\nС уважением,\nКоманда банка",
		ClientOriented: "Здравствуйте!\n\nСпасибо за ваше письмо. Мы получили ваш запрос и уже работаем над ним. В ближайшее время наши специалисты свяжутся с вами.\n\nС наилучшими пожеланиями,\nВаш банк",
		BriefInfo:      fmt.Sprintf("Ваше обращение принято. Ответ будет направлен в течение %d часов.", sla),
	}
}

// extractJSON выделяет JSON-объект из текста модели: берётся фрагмент от
// первой '{' до последней '}'.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}
