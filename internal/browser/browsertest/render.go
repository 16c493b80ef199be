package browsertest

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

var defaultRows = []struct {
	code       string
	start, end int
}{
	{"10", 900, 1100},
	{"20", 1100, 1300},
	{"30", 1300, 1500},
}

func (s *Site) title() string {
	switch s.page {
	case "home":
		return "ホーム画面"
	case "login":
		return "ログイン"
	case "results":
		return "空き状況"
	case "terms":
		return "利用規約"
	case "confirm":
		return "予約内容確認"
	case "complete":
		return "予約完了"
	case "payment":
		return "未入金予約の確認・支払"
	case "timeout", "error":
		return "エラー"
	}
	return ""
}

func (s *Site) render() string {
	if s.static != nil {
		return fmt.Sprintf("<html><head><title>%s</title></head><body>%s</body></html>",
			html.EscapeString(s.static.title), s.static.body)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", html.EscapeString(s.title()))
	switch s.page {
	case "home":
		s.renderHeader(&b)
		if s.loggedIn {
			s.renderSearchForm(&b)
		}
	case "login":
		b.WriteString(`<form id="login-form">`)
		if s.loginError {
			b.WriteString(`<p class="error">利用者番号またはパスワードが正しくありません</p>`)
		}
		fmt.Fprintf(&b, `<input type="text" id="userId" name="userId" value="%s">`, html.EscapeString(s.form["userId"]))
		b.WriteString(`<input type="password" id="password" name="password" value="">`)
		b.WriteString(`<button id="btn-go" type="button">ログイン</button></form>`)
	case "results":
		s.renderHeader(&b)
		s.renderSearchForm(&b)
		s.renderResults(&b)
	case "terms":
		s.renderHeader(&b)
		b.WriteString(`<h2>利用規約</h2><p>施設の利用にあたっては規約を遵守してください。</p>`)
		checked := ""
		if s.termsAgreed {
			checked = " checked"
		}
		fmt.Fprintf(&b, `<input type="radio" id="ruleFg_1" name="ruleFg" value="1"%s><label for="ruleFg_1">同意する</label>`, checked)
		b.WriteString(`<input type="radio" id="ruleFg_2" name="ruleFg" value="2"><label for="ruleFg_2">同意しない</label>`)
		b.WriteString(`<button id="btn-go" type="button" onclick="gRsvWInstUseruleRsvApplyAction();">確認</button>`)
	case "confirm":
		s.renderHeader(&b)
		b.WriteString(`<h2>予約内容確認</h2><table id="rsv-lines">`)
		for i, c := range s.selectedCells() {
			id := fmt.Sprintf("peoples%d", i+1)
			fmt.Fprintf(&b, `<tr><td>%s</td><td><input type="text" id="%s" name="applyNum" value="%s"></td></tr>`,
				s.cellDate(c).Format("2006/01/02"), id, html.EscapeString(s.form[id]))
		}
		b.WriteString(`</table><p class="contact">予約に関するお問い合わせ 0337774000</p>`)
		b.WriteString(`<button id="btn-go" type="button" onclick="checkTextValue();gRsvWInstRsvApplyAction();">予約</button>`)
	case "complete":
		s.renderHeader(&b)
		b.WriteString(`<h2>予約完了</h2><p>予約を受け付けました。</p>`)
		if s.NumberInTable {
			fmt.Fprintf(&b, `<table class="rsv-no"><tr><th>予約番号</th><td>%s</td></tr></table>`, s.ReservationNumber)
		} else {
			fmt.Fprintf(&b, `<p class="rsv-no">予約番号：%s</p>`, s.ReservationNumber)
		}
		b.WriteString(`<button id="btn-go" type="button" onclick="gRsvCreditInitListAction();">未入金予約の確認・支払へ</button>`)
	case "payment":
		s.renderHeader(&b)
		b.WriteString(`<h2>未入金予約の確認・支払</h2>`)
		b.WriteString(`<button class="btn btn-back" type="button" onclick="gRsvWOpeHomeAction();">もどる</button>`)
	case "timeout":
		b.WriteString(`<p>セッションタイムアウトが発生しました。再度、認証を行って下さい。</p>`)
		b.WriteString(`<button id="btn-light" type="button" onclick="location.href='index.jsp'">Home</button>`)
	case "error":
		b.WriteString(`<p>システムエラーが発生しました (pawfa1000)</p>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func (s *Site) renderHeader(b *strings.Builder) {
	b.WriteString(`<div id="header">`)
	if s.loggedIn {
		b.WriteString(`<span class="user">品川 太郎 様</span><a id="btn-logout" href="#">ログアウト</a>`)
	} else {
		b.WriteString(`<a id="btn-login" href="rsvWTransUserLoginAction.do">ログイン</a>`)
	}
	b.WriteString(`</div>`)
}

func (s *Site) renderSearchForm(b *strings.Builder) {
	if s.formOpen {
		b.WriteString(`<div id="free-search-cond" class="collapse show">`)
	} else {
		b.WriteString(`<div id="free-search-cond" class="collapse" style="display: none">`)
	}
	b.WriteString(`<input type="radio" id="thismonth" name="date"><label class="btn radiobtn" for="thismonth">1ヶ月</label>`)

	b.WriteString(`<select id="bname" name="bcd"><option value="0">選択してください</option>`)
	for _, v := range s.Venues {
		fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, v.AreaCode, selectedAttr(s.form["bname"] == v.AreaCode), v.Name)
	}
	b.WriteString(`</select><select id="iname" name="icd"><option value="0">選択してください</option>`)
	if v := s.venueByArea(s.form["bname"]); v != nil {
		for _, f := range v.Facilities {
			fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, f.ID, selectedAttr(s.form["iname"] == f.ID), f.Name)
		}
	}
	b.WriteString(`</select><select id="purpose"><option value="0">選択してください</option>`)
	b.WriteString(`<option value="31000000_31011700">テニス</option></select>`)
	b.WriteString(`<button id="btn-search" type="button">検索</button></div>`)
	b.WriteString(`<button id="change-condition" type="button">条件変更</button>`)
}

func (s *Site) renderResults(b *strings.Builder) {
	b.WriteString(`<ul id="free-info-nav" class="nav nav-tabs">`)
	fmt.Fprintf(b, `<li><a id="tab-facility" class="nav-link%s" href="#">施設ごと</a></li>`, activeClass(!s.dateTab))
	fmt.Fprintf(b, `<li><a id="tab-date" class="nav-link%s" href="#">日付順</a></li></ul>`, activeClass(s.dateTab))

	if s.NoCalendar || s.facility == nil {
		b.WriteString(`<div id="unreserved-list" style="display: none"></div>`)
		b.WriteString(`<div id="unreserved-notfound">該当する空き施設はありません</div>`)
		return
	}

	b.WriteString(`<div id="unreserved-notfound" style="display: none">該当する空き施設はありません</div>`)
	b.WriteString(`<div id="unreserved-list">`)
	b.WriteString(`<select id="facility-select"><option value="0">施設を選択</option>`)
	for _, f := range s.venue.Facilities {
		fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, f.ID, selectedAttr(f == s.facility), f.Name)
	}
	b.WriteString(`</select>`)

	if s.weeklyOpen {
		b.WriteString(`<div id="weekly" class="collapse show">`)
	} else {
		b.WriteString(`<div id="weekly" class="collapse">`)
	}
	b.WriteString(`<button id="weekly-toggle" type="button" data-toggle="collapse">週表示</button>`)
	if s.weeklyOpen {
		b.WriteString(`<div class="weekly-body">`)
	} else {
		b.WriteString(`<div class="weekly-body" style="display: none">`)
	}
	b.WriteString(`<div id="loadingweek" style="display: none"></div>`)
	s.renderWeek(b)
	fmt.Fprintf(b, `<button id="last-week" type="button" onclick="getWeekInfoAjax(3)"%s>前週</button>`, disabledAttr(s.week == 0))
	fmt.Fprintf(b, `<button id="next-week" type="button" onclick="getWeekInfoAjax(4)"%s>翌週</button>`, disabledAttr(s.week >= s.facility.LastWeek))
	b.WriteString(`</div></div>`)

	if s.moreLeft > 0 {
		b.WriteString(`<button id="unreserved-moreBtn" type="button">さらに読み込む</button>`)
	} else {
		b.WriteString(`<button id="unreserved-moreBtn" type="button" style="display: none">さらに読み込む</button>`)
	}
	b.WriteString(`</div>`)

	b.WriteString(`<form id="rsv-form">`)
	if s.HiddenInputs {
		for _, c := range s.selectedCells() {
			fmt.Fprintf(b, `<input type="hidden" name="rsvCell" value="%s">`, s.CellID(c))
		}
	}
	b.WriteString(`</form>`)
	b.WriteString(`<button id="btn-go" type="button" onclick="gRsvWOpeReservedApplyAction();">予約</button>`)
}

func (s *Site) renderWeek(b *strings.Builder) {
	f := s.facility
	fmt.Fprintf(b, `<table id="week-info" class="calendar"><caption>%s %s</caption><thead><tr><th></th>`, s.venue.Name, f.Name)
	for d := 0; d < 7; d++ {
		fmt.Fprintf(b, `<th>%s</th>`, s.Today.AddDate(0, 0, s.week*7+d).Format("01/02"))
	}
	b.WriteString(`</tr></thead><tbody>`)

	rows := map[string]int{}
	for _, r := range defaultRows {
		rows[r.code] = r.start
	}
	for _, c := range f.Cells {
		if c.Week == s.week {
			rows[c.TimeCode] = c.Start
		}
	}
	codes := make([]string, 0, len(rows))
	for code := range rows {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return rows[codes[i]] < rows[codes[j]] })

	for _, code := range codes {
		fmt.Fprintf(b, `<tr><th>%02d:%02d</th>`, rows[code]/100, rows[code]%100)
		for d := 0; d < 7; d++ {
			s.renderCell(b, d, code)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
}

func (s *Site) renderCell(b *strings.Builder, day int, code string) {
	var cell *Cell
	for _, c := range s.facility.Cells {
		if c.Week == s.week && c.Day == day && c.TimeCode == code {
			cell = c
		}
	}
	id := fmt.Sprintf("%s_%s", s.Today.AddDate(0, 0, s.week*7+day).Format("20060102"), code)
	if cell == nil || !cell.Available || cell.booked {
		fmt.Fprintf(b, `<td id="%s" class="reserved">×</td>`, id)
		return
	}

	onclick := cell.RawOnclick
	if onclick == "" {
		onclick = fmt.Sprintf(`setReserv(this, "%s", "%s", %s, %d, %d, 1)`,
			s.venue.ID, s.facility.ID, s.cellDate(cell).Format("20060102"), cell.Start, cell.End)
	}
	class := "available"
	marker := ""
	if cell.Selected && s.MarkSelected {
		class += " selected"
		marker = ` data-selected="1"`
	}
	fmt.Fprintf(b, `<td id="%s" class="%s"%s onclick='%s'>`, id, class, marker, html.EscapeString(onclick))
	if cell.Selected {
		b.WriteString(`<img src="/img/calendar_selected.svg" alt="選択中">`)
	} else {
		b.WriteString(`<img src="/img/calendar_available_outline.svg" alt="空き">`)
	}
	b.WriteString(`</td>`)
}

func selectedAttr(on bool) string {
	if on {
		return " selected"
	}
	return ""
}

func activeClass(on bool) string {
	if on {
		return " active"
	}
	return ""
}

func disabledAttr(on bool) string {
	if on {
		return " disabled"
	}
	return ""
}
