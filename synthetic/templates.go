package synthetic

type template struct {
	category    string
	titles      []string
	channels    []string
	tags        []string
	description string
	color       string
	label       string
}

var templates = []template{
	{
		category: "health",
		titles: []string{
			"60대도 쉽게 따라하는 무릎 건강 운동 5가지",
			"시니어를 위한 혈압 낮추는 생활습관",
			"중년 이후 반드시 알아야 할 건강 관리법",
			"실버 요가로 관절 건강 지키기",
			"70대도 할 수 있는 홈트레이닝",
			"당뇨 예방하는 시니어 식단과 운동",
			"치매 예방을 위한 두뇌 운동법",
			"시니어를 위한 척추 건강 스트레칭",
			"갱년기 이후 건강 관리 완전 가이드",
			"실버세대를 위한 면역력 높이는 방법",
		},
		channels:    []string{"실버헬스TV", "건강한노년", "시니어웰빙", "실버운동방", "헬시에이징", "노인건강연구소", "시니어피트니스", "건강백세"},
		tags:        []string{"시니어건강", "실버운동", "노인체조", "건강관리", "관절건강"},
		description: "시니어를 위한 건강 관리 정보와 운동법을 제공합니다.",
		color:       "10b981/ffffff",
		label:       "건강",
	},
	{
		category: "tech",
		titles: []string{
			"시니어를 위한 카카오톡 완전정복 가이드",
			"스마트폰 기초부터 고급기능까지",
			"AI 시대, 시니어도 할 수 있는 디지털 활용법",
			"온라인 쇼핑 안전하게 하는 방법",
			"유튜브 보는 법부터 채널 만들기까지",
			"시니어를 위한 인터넷 뱅킹 완전 가이드",
			"스마트워치 활용법 시니어 버전",
			"화상통화로 손자 손녀와 소통하기",
			"시니어도 쉬운 온라인 병원 예약",
			"안전한 와이파이 사용법",
		},
		channels:    []string{"디지털시니어", "스마트실버", "시니어IT교육", "디지털라이프", "실버테크", "시니어앱연구소", "디지털할머니"},
		tags:        []string{"시니어IT", "스마트폰", "디지털교육", "온라인", "앱사용법"},
		description: "시니어도 쉽게 따라할 수 있는 디지털 기기 활용법을 알려드립니다.",
		color:       "3b82f6/ffffff",
		label:       "테크",
	},
	{
		category: "cooking",
		titles: []string{
			"50대 이후 건강한 식단 한 주 레시피",
			"당뇨 환자를 위한 맛있는 저당 요리",
			"혈압에 좋은 나트륨 줄인 김치 담그기",
			"중년 다이어트를 위한 든든한 한 끼",
			"시니어를 위한 영양 만점 간식 만들기",
			"관절에 좋은 콜라겐 요리법",
			"소화가 잘 되는 시니어 반찬 10가지",
			"혈관 건강을 위한 오메가3 요리",
			"면역력 강화 시니어 보양식",
			"간편하게 만드는 영양 죽 레시피",
		},
		channels:    []string{"건강한실버요리", "시니어쿠킹", "웰빙레시피", "실버키친", "건강식단연구소", "영양사할머니", "시니어셰프"},
		tags:        []string{"시니어요리", "건강식단", "간편요리", "영양관리", "레시피"},
		description: "건강하고 맛있는 시니어를 위한 요리 레시피를 소개합니다.",
		color:       "f59e0b/ffffff",
		label:       "요리",
	},
	{
		category: "travel",
		titles: []string{
			"시니어 추천 국내 여행지 BEST 10",
			"60대 부모님과 함께하는 제주도 3박4일",
			"실버세대를 위한 유럽 패키지여행 후기",
			"중년 부부 캠핑 첫 도전기",
			"기차 여행으로 즐기는 전국 맛집 투어",
			"시니어 버스투어 완전 가이드",
			"효도 여행 베스트 코스 추천",
			"실버세대를 위한 온천 여행",
			"시니어 해외여행 준비 체크리스트",
			"걸으면서 즐기는 시니어 도보여행",
		},
		channels:    []string{"시니어트래블", "실버여행가", "중년여행클럽", "여행하는할머니", "실버투어", "효도여행TV", "시니어버스투어"},
		tags:        []string{"시니어여행", "국내여행", "해외여행", "패키지여행", "효도여행"},
		description: "시니어를 위한 안전하고 편안한 여행 정보를 제공합니다.",
		color:       "ef4444/ffffff",
		label:       "여행",
	},
	{
		category: "hobby",
		titles: []string{
			"60대에 시작하는 서예, 마음이 편해지는 시간",
			"시니어 합창단, 함께 부르는 추억의 노래",
			"정원 가꾸기로 즐기는 시니어 라이프",
			"뜨개질로 만드는 손자 손녀 선물",
			"실버 댄스로 건강하고 즐겁게",
			"시니어를 위한 사진 취미 시작하기",
			"중년 이후 배우는 악기 연주",
			"실버세대 독서 모임 운영법",
			"시니어 봉사활동 참여 가이드",
			"노년기 새로운 취미 찾기",
		},
		channels:    []string{"실버문화센터", "시니어취미방", "중년의품격", "실버아트", "시니어클럽", "취미생활TV", "실버라이프"},
		tags:        []string{"시니어취미", "문화활동", "여가생활", "평생교육", "동호회"},
		description: "시니어의 활기찬 여가 생활을 위한 취미 활동을 소개합니다.",
		color:       "8b5cf6/ffffff",
		label:       "취미",
	},
	{
		category: "life",
		titles: []string{
			"시니어를 위한 연금 수령 완전 가이드",
			"은퇴 후 재정 관리 노하우",
			"실버타운 선택 시 체크포인트",
			"시니어를 위한 보험 정리법",
			"노후 준비 체크리스트",
			"시니어 패션 스타일링 팁",
			"중년 이후 인간관계 관리법",
			"시니어를 위한 안전한 집 만들기",
			"노인 돌봄 서비스 이용 가이드",
			"실버세대를 위한 법적 준비사항",
		},
		channels:    []string{"실버라이프코치", "시니어정보방", "노후설계전문가", "실버컨설팅", "시니어라이프", "은퇴설계TV"},
		tags:        []string{"시니어라이프", "노후준비", "은퇴설계", "연금", "실버타운"},
		description: "시니어의 풍요로운 생활을 위한 유용한 정보를 제공합니다.",
		color:       "06b6d4/ffffff",
		label:       "라이프",
	},
}

// viewBand is a weighted range of view counts
type viewBand struct {
	min, max int64
	weight   int
}

var viewBands = []viewBand{
	{10000, 50000, 30},
	{50000, 150000, 40},
	{150000, 500000, 25},
	{500000, 1000000, 5},
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
