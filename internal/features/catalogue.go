package features

// ID identifies a feature by its position in the catalogue.
type ID int

const (
	FlowID ID = iota
	SrcIP
	SrcPort
	DstIP
	DstPort
	Protocol
	Timestamp
	FlowDuration
	TotFwdPkts
	TotBwdPkts
	TotLenFwdPkts
	TotLenBwdPkts
	FwdPktLenMax
	FwdPktLenMin
	FwdPktLenMean
	FwdPktLenStd
	BwdPktLenMax
	BwdPktLenMin
	BwdPktLenMean
	BwdPktLenStd
	FlowBytsPerSec
	FlowPktsPerSec
	FlowIATMean
	FlowIATStd
	FlowIATMax
	FlowIATMin
	FwdIATTot
	FwdIATMean
	FwdIATStd
	FwdIATMax
	FwdIATMin
	BwdIATTot
	BwdIATMean
	BwdIATStd
	BwdIATMax
	BwdIATMin
	FwdPSHFlags
	BwdPSHFlags
	FwdURGFlags
	BwdURGFlags
	FwdHeaderLen
	BwdHeaderLen
	FwdPktsPerSec
	BwdPktsPerSec
	PktLenMin
	PktLenMax
	PktLenMean
	PktLenStd
	PktLenVar
	FINFlagCnt
	SYNFlagCnt
	RSTFlagCnt
	PSHFlagCnt
	ACKFlagCnt
	URGFlagCnt
	CWRFlagCnt
	ECEFlagCnt
	DownUpRatio
	PktSizeAvg
	FwdSegSizeAvg
	BwdSegSizeAvg
	FwdBytsPerBulkAvg
	FwdPktsPerBulkAvg
	FwdBulkRateAvg
	BwdBytsPerBulkAvg
	BwdPktsPerBulkAvg
	BwdBulkRateAvg
	SubflowFwdPkts
	SubflowFwdByts
	SubflowBwdPkts
	SubflowBwdByts
	InitFwdWinByts
	InitBwdWinByts
	FwdActDataPkts
	FwdSegSizeMin
	ActiveMean
	ActiveStd
	ActiveMax
	ActiveMin
	IdleMean
	IdleStd
	IdleMax
	IdleMin
	Label

	numFeatures
)

// Kind selects how a feature value is rendered.
type Kind int

const (
	// KindNumeric values are rendered as decimal numbers.
	KindNumeric Kind = iota
	// KindText values are rendered verbatim.
	KindText
	// KindCategorical values are codes rendered through the feature's mapping.
	KindCategorical
)

// Mapping turns a numeric code into a label. Codes missing from Labels render as Fallback.
type Mapping struct {
	Labels   map[int64]string
	Fallback string
}

// Lookup returns the label for code.
func (m *Mapping) Lookup(code int64) string {
	if s, ok := m.Labels[code]; ok {
		return s
	}
	return m.Fallback
}

// Feature is one column of the catalogue.
type Feature struct {
	ID      ID
	Name    string // display name, used in the header
	Abbr    string
	Key     string // output-column key, used in configuration
	Numeric bool
	Kind    Kind
	Mapping *Mapping
	// Values lists the enumerated values a text column may take.
	Values []string
}

// ProtocolMapping maps IANA transport protocol numbers to the labels used in output rows.
var ProtocolMapping = &Mapping{
	Labels:   map[int64]string{6: "TCP", 17: "UDP"},
	Fallback: "Others",
}

func numeric(id ID, name, abbr, key string) Feature {
	return Feature{ID: id, Name: name, Abbr: abbr, Key: key, Numeric: true, Kind: KindNumeric}
}

func text(id ID, name, abbr, key string) Feature {
	return Feature{ID: id, Name: name, Abbr: abbr, Key: key, Kind: KindText}
}

// catalogue is ordered by ID. Output column order always follows it.
var catalogue = [numFeatures]Feature{
	text(FlowID, "Flow ID", "FID", "Flow_ID"),
	text(SrcIP, "Src IP", "SIP", "Src_IP"),
	numeric(SrcPort, "Src Port", "SPT", "Src_Port"),
	text(DstIP, "Dst IP", "DIP", "Dst_IP"),
	numeric(DstPort, "Dst Port", "DPT", "Dst_Port"),
	{ID: Protocol, Name: "Protocol", Abbr: "PROT", Key: "Protocol", Numeric: true, Kind: KindCategorical, Mapping: ProtocolMapping},
	text(Timestamp, "Timestamp", "TSTP", "Timestamp"),
	numeric(FlowDuration, "Flow Duration", "DUR", "Flow_Duration"),
	numeric(TotFwdPkts, "Tot Fwd Pkts", "TFwP", "Tot_Fwd_Pkts"),
	numeric(TotBwdPkts, "Tot Bwd Pkts", "TBwP", "Tot_Bwd_Pkts"),
	numeric(TotLenFwdPkts, "TotLen Fwd Pkts", "TLFwP", "TotLen_Fwd_Pkts"),
	numeric(TotLenBwdPkts, "TotLen Bwd Pkts", "TLBwP", "TotLen_Bwd_Pkts"),
	numeric(FwdPktLenMax, "Fwd Pkt Len Max", "FwPLMA", "Fwd_Pkt_Len_Max"),
	numeric(FwdPktLenMin, "Fwd Pkt Len Min", "FwPLMI", "Fwd_Pkt_Len_Min"),
	numeric(FwdPktLenMean, "Fwd Pkt Len Mean", "FwPLAG", "Fwd_Pkt_Len_Mean"),
	numeric(FwdPktLenStd, "Fwd Pkt Len Std", "FwPLSD", "Fwd_Pkt_Len_Std"),
	numeric(BwdPktLenMax, "Bwd Pkt Len Max", "BwPLMA", "Bwd_Pkt_Len_Max"),
	numeric(BwdPktLenMin, "Bwd Pkt Len Min", "BwPLMI", "Bwd_Pkt_Len_Min"),
	numeric(BwdPktLenMean, "Bwd Pkt Len Mean", "BwPLAG", "Bwd_Pkt_Len_Mean"),
	numeric(BwdPktLenStd, "Bwd Pkt Len Std", "BwPLSD", "Bwd_Pkt_Len_Std"),
	numeric(FlowBytsPerSec, "Flow Byts/s", "FB/s", "Flow_Byts_s"),
	numeric(FlowPktsPerSec, "Flow Pkts/s", "FP/s", "Flow_Pkts_s"),
	numeric(FlowIATMean, "Flow IAT Mean", "FLIATAG", "Flow_IAT_Mean"),
	numeric(FlowIATStd, "Flow IAT Std", "FLIATSD", "Flow_IAT_Std"),
	numeric(FlowIATMax, "Flow IAT Max", "FLIATMA", "Flow_IAT_Max"),
	numeric(FlowIATMin, "Flow IAT Min", "FLIATMI", "Flow_IAT_Min"),
	numeric(FwdIATTot, "Fwd IAT Tot", "FwIATTO", "Fwd_IAT_Tot"),
	numeric(FwdIATMean, "Fwd IAT Mean", "FwIATAG", "Fwd_IAT_Mean"),
	numeric(FwdIATStd, "Fwd IAT Std", "FwIATSD", "Fwd_IAT_Std"),
	numeric(FwdIATMax, "Fwd IAT Max", "FwIATMA", "Fwd_IAT_Max"),
	numeric(FwdIATMin, "Fwd IAT Min", "FwIATMI", "Fwd_IAT_Min"),
	numeric(BwdIATTot, "Bwd IAT Tot", "BwIATTO", "Bwd_IAT_Tot"),
	numeric(BwdIATMean, "Bwd IAT Mean", "BwIATAG", "Bwd_IAT_Mean"),
	numeric(BwdIATStd, "Bwd IAT Std", "BwIATSD", "Bwd_IAT_Std"),
	// The key keeps its historical spelling so existing profile files stay valid.
	numeric(BwdIATMax, "Bwd IAT Max", "BwIATMA", "Bwd_IAT_Maxv"),
	numeric(BwdIATMin, "Bwd IAT Min", "BwIATMI", "Bwd_IAT_Min"),
	numeric(FwdPSHFlags, "Fwd PSH Flags", "FwPSH", "Fwd_PSH_Flags"),
	numeric(BwdPSHFlags, "Bwd PSH Flags", "BwPSH", "Bwd_PSH_Flags"),
	numeric(FwdURGFlags, "Fwd URG Flags", "FwURG", "Fwd_URG_Flags"),
	numeric(BwdURGFlags, "Bwd URG Flags", "BwURG", "Bwd_URG_Flags"),
	numeric(FwdHeaderLen, "Fwd Header Len", "FwHL", "Fwd_Header_Len"),
	numeric(BwdHeaderLen, "Bwd Header Len", "BwHL", "Bwd_Header_Len"),
	numeric(FwdPktsPerSec, "Fwd Pkts/s", "FwP/s", "Fwd_Pkts_s"),
	numeric(BwdPktsPerSec, "Bwd Pkts/s", "Bwp/s", "Bwd_Pkts_s"),
	numeric(PktLenMin, "Pkt Len Min", "PLMI", "Pkt_Len_Min"),
	numeric(PktLenMax, "Pkt Len Max", "PLMA", "Pkt_Len_Max"),
	numeric(PktLenMean, "Pkt Len Mean", "PLAG", "Pkt_Len_Mean"),
	numeric(PktLenStd, "Pkt Len Std", "PLSD", "Pkt_Len_Std"),
	numeric(PktLenVar, "Pkt Len Var", "PLVA", "Pkt_Len_Var"),
	numeric(FINFlagCnt, "FIN Flag Cnt", "FINCT", "FIN_Flag_Cnt"),
	numeric(SYNFlagCnt, "SYN Flag Cnt", "SYNCT", "SYN_Flag_Cnt"),
	numeric(RSTFlagCnt, "RST Flag Cnt", "RSTCT", "RST_Flag_Cnt"),
	numeric(PSHFlagCnt, "PSH Flag Cnt", "PSHCT", "PSH_Flag_Cnt"),
	numeric(ACKFlagCnt, "ACK Flag Cnt", "ACKCT", "ACK_Flag_Cnt"),
	numeric(URGFlagCnt, "URG Flag Cnt", "URGCT", "URG_Flag_Cnt"),
	numeric(CWRFlagCnt, "CWR Flag Count", "CWRCT", "CWR_Flag_Count"),
	numeric(ECEFlagCnt, "ECE Flag Cnt", "ECECT", "ECE_Flag_Cnt"),
	numeric(DownUpRatio, "Down/Up Ratio", "D/URO", "Down_Up_Ratio"),
	numeric(PktSizeAvg, "Pkt Size Avg", "PSAG", "Pkt_Size_Avg"),
	numeric(FwdSegSizeAvg, "Fwd Seg Size Avg", "FwSgAG", "Fwd_Seg_Size_Avg"),
	numeric(BwdSegSizeAvg, "Bwd Seg Size Avg", "BwSgAG", "Bwd_Seg_Size_Avg"),
	numeric(FwdBytsPerBulkAvg, "Fwd Byts/b Avg", "FwB/BAG", "Fwd_Byts_b_Avg"),
	numeric(FwdPktsPerBulkAvg, "Fwd Pkts/b Avg", "FwP/BAG", "Fwd_Pkts_b_Avg"),
	numeric(FwdBulkRateAvg, "Fwd Blk Rate Avg", "FwBRAG", "Fwd_Blk_Rate_Avg"),
	numeric(BwdBytsPerBulkAvg, "Bwd Byts/b Avg", "BwB/BAG", "Bwd_Byts_b_Avg"),
	numeric(BwdPktsPerBulkAvg, "Bwd Pkts/b Avg", "BwP/BAG", "Bwd_Pkts_b_Avg"),
	numeric(BwdBulkRateAvg, "Bwd Blk Rate Avg", "BwBRAG", "Bwd_Blk_Rate_Avg"),
	numeric(SubflowFwdPkts, "Subflow Fwd Pkts", "SFFwP", "Subflow_Fwd_Pkts"),
	numeric(SubflowFwdByts, "Subflow Fwd Byts", "SFFwB", "Subflow_Fwd_Byts"),
	numeric(SubflowBwdPkts, "Subflow Bwd Pkts", "SFBwP", "Subflow_Bwd_Pkts"),
	numeric(SubflowBwdByts, "Subflow Bwd Byts", "SFBwB", "Subflow_Bwd_Byts"),
	numeric(InitFwdWinByts, "Init Fwd Win Byts", "FwWB", "Init_Fwd_Win_Byts"),
	numeric(InitBwdWinByts, "Init Bwd Win Byts", "BwWB", "Init_Bwd_Win_Byts"),
	numeric(FwdActDataPkts, "Fwd Act Data Pkts", "FwAP", "Fwd_Act_Data_Pkts"),
	numeric(FwdSegSizeMin, "Fwd Seg Size Min", "FwSgMI", "Fwd_Seg_Size_Min"),
	numeric(ActiveMean, "Active Mean", "AcAG", "Active_Mean"),
	numeric(ActiveStd, "Active Std", "AcSD", "Active_Std"),
	numeric(ActiveMax, "Active Max", "AcMA", "Active_Max"),
	numeric(ActiveMin, "Active Min", "AcMI", "Active_Min"),
	numeric(IdleMean, "Idle Mean", "IlAG", "Idle_Mean"),
	numeric(IdleStd, "Idle Std", "IlSD", "Idle_Std"),
	numeric(IdleMax, "Idle Max", "IlMA", "Idle_Max"),
	numeric(IdleMin, "Idle Min", "IlMI", "Idle_Min"),
	{ID: Label, Name: "Label", Abbr: "LBL", Key: "Label", Kind: KindText, Values: []string{"CIC"}},
}

var (
	byKey  = make(map[string]Feature, numFeatures)
	byName = make(map[string]Feature, numFeatures)
)

func init() {
	for i, f := range catalogue {
		if f.ID != ID(i) {
			panic("features: catalogue entry out of order: " + f.Key)
		}
		byKey[f.Key] = f
		byName[f.Name] = f
	}
}

// All returns the full catalogue in declaration order.
func All() []Feature {
	out := make([]Feature, len(catalogue))
	copy(out, catalogue[:])
	return out
}

// Keys returns every output-column key in declaration order.
func Keys() []string {
	keys := make([]string, len(catalogue))
	for i, f := range catalogue {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the feature with the given ID.
func Get(id ID) Feature {
	return catalogue[id]
}

// ByKey looks a feature up by its output-column key.
func ByKey(key string) (Feature, bool) {
	f, ok := byKey[key]
	return f, ok
}

// ByName looks a feature up by its display name.
func ByName(name string) (Feature, bool) {
	f, ok := byName[name]
	return f, ok
}

// NumericFeatures returns the features usable as model inputs: Protocol and
// every column from Flow Duration to Idle Min.
func NumericFeatures() []Feature {
	out := []Feature{catalogue[Protocol]}
	return append(out, catalogue[FlowDuration:IdleMin+1]...)
}

// LengthFeatures returns the features derived from byte counts.
func LengthFeatures() []Feature {
	ids := []ID{
		TotLenFwdPkts, TotLenBwdPkts, FlowBytsPerSec, FlowPktsPerSec, FwdHeaderLen, BwdHeaderLen,
		FwdPktsPerSec, BwdPktsPerSec, PktSizeAvg, FwdSegSizeAvg, BwdSegSizeAvg,
	}
	out := make([]Feature, len(ids))
	for i, id := range ids {
		out[i] = catalogue[id]
	}
	return out
}
