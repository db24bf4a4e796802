package config

// DefaultKeywords seed discovery when no keywords are given
var DefaultKeywords = []string{"시니어", "노인", "중년", "50대", "60대", "70대", "실버", "어르신", "부모님"}

// CategoryKeywords groups senior-audience search terms by topic
var CategoryKeywords = map[string][]string{
	"health": {
		"시니어 운동", "실버 체조", "노인 건강", "중년 건강", "시니어 요가", "노년 운동",
		"관절 건강", "혈압 관리", "당뇨 관리", "치매 예방", "건강식품", "한방치료",
		"실버 피트니스", "노인 재활", "시니어 스트레칭", "무릎 건강", "척추 건강",
	},
	"hobby": {
		"시니어 취미", "노년 여가", "실버 문화", "시니어 댄스", "노인 악기",
		"시니어 그림", "서예", "원예", "실버 합창", "노년 학습", "평생교육",
		"시니어 독서", "실버 봉사", "노인 동호회",
	},
	"cooking": {
		"시니어 요리", "간편 요리", "건강 레시피", "노인 식단", "실버 쿠킹",
		"중년 요리", "한식 요리", "건강식", "당뇨식단", "고혈압 식단",
		"시니어 영양", "노인 반찬", "건강 간식",
	},
	"life": {
		"시니어 라이프", "노년 생활", "실버 정보", "시니어 팁", "노인 생활용품",
		"연금 정보", "실버타운", "노후 준비", "중년 라이프스타일", "은퇴 생활",
		"시니어 패션", "노인 돌봄",
	},
	"travel": {
		"시니어 여행", "실버 여행", "노년 여행", "시니어 투어", "중년 여행",
		"실버 패키지", "효도 여행", "국내 여행", "해외 여행", "시니어 캠핑",
		"노인 버스여행",
	},
	"tech": {
		"시니어 스마트폰", "노인 컴퓨터", "실버 디지털", "시니어 앱",
		"중년 IT", "AI 활용", "스마트워치", "디지털 교육", "온라인 쇼핑",
		"시니어 SNS", "유튜브 사용법",
	},
}

// CategoryOf returns the topic whose keyword list contains keyword, or "" if none does
func CategoryOf(keyword string) string {
	for category, keywords := range CategoryKeywords {
		for _, k := range keywords {
			if k == keyword {
				return category
			}
		}
	}
	return ""
}
