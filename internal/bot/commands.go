// Package bot — commands.go: имена команд, английские синонимы и справка.
package bot

import "strings"

// aliases сводит синонимы к русскому имени команды.
var aliases = map[string]string{
	"passive":     "бизнес",
	"create":      "создать",
	"collect":     "собрать",
	"sell":        "продать",
	"buyslot":     "слот",
	"income":      "доход",
	"leaderboard": "топ",
	"stocks":      "акции",
	"market":      "рынок",
	"upgrade":     "апгрейд",
	"buyupgrade":  "купитьапгрейд",
	"stake":       "доля",
	"confirm":     "подтвердить",
	"unstake":     "продатьдолю",
	"stakes":      "доли",
	"compete":     "батл",
	"battle":      "батл",
	"pick":        "выбрать",
	"start":       "старт",
	"argue":       "аргумент",
	"forfeit":     "сдаться",
	"minigame":    "продажи",
	"pitch":       "питч",
	"skip":        "пропустить",
	"end":         "закончить",
	"balance":     "пленки",
	"history":     "транзакции",
	"бизнесы":     "бизнес",
	"баланс":      "пленки",
}

// canonical приводит имя команды к виду, который понимает routeCommand:
// нижний регистр, «ё» → «е», без суффикса @botname, синонимы → русское имя.
func canonical(name string) string {
	name = strings.ToLower(name)
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "ё", "е")
	if ru, ok := aliases[name]; ok {
		return ru
	}
	return name
}

type feature int

const (
	featureNone feature = iota
	featureBattle
	featureMinigame
	featureEquity
	// !выбрать общий для батла и мини-игры
	featurePick
)

func featureOf(cmd string) feature {
	switch cmd {
	case "батл", "старт", "аргумент", "сдаться":
		return featureBattle
	case "продажи", "питч", "пропустить", "закончить":
		return featureMinigame
	case "доля", "подтвердить", "продатьдолю", "доли":
		return featureEquity
	case "выбрать":
		return featurePick
	}
	return featureNone
}

const helpText = `💼 Бизнес-батлы — команды (префиксы ! . /):

🏢 Бизнесы
!бизнес — ваши бизнесы
!создать <слот> <название> | <описание>
!собрать [слот] — забрать доход
!продать <слот>
!слот — купить новый слот
!доход — сводка дохода
!топ [богачи|бизнесы]

📈 Биржа и рынок
!акции — биржа
!рынок — апгрейды на продажу
!апгрейд <слот> <название> | <описание>
!купитьапгрейд <id> <слот>

🤝 Доли
!доля @user <слот> <процент> → !подтвердить
!продатьдолю @user <слот> <процент>
!доли [@user <слот>]

⚔️ Батлы
!батл @user → !выбрать <слот> → !старт
!аргумент <текст> • !сдаться

🛒 Мини-игра
!продажи → !выбрать <слот>
!питч <текст> • !пропустить • !закончить

💰 !пленки • !транзакции`
