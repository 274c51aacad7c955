package lms7

import "sort"

// Fixed register addresses
const (
	RegChannelControl = 0x0020 // MAC and logic resets
	RegChipID         = 0x002F // version, revision, mask
	RegRSSILow        = 0x040E // RSSI bits [1:0]
	RegRSSIHigh       = 0x040F // RSSI bits [17:2]
)

// TxLogicResetMask covers LRST_TX_B and LRST_TX_A in RegChannelControl
const TxLogicResetMask = 0xA000

// sharedLimit is the first address that is banked per channel
const sharedLimit = 0x0100

// Global and analog front-end fields
var (
	MAC = Param{Name: "MAC", Addr: 0x0020, MSB: 1, LSB: 0}

	ISEL_DAC_AFE = Param{Name: "ISEL_DAC_AFE", Addr: 0x0082, MSB: 15, LSB: 13}
	PD_RX_AFE1   = Param{Name: "PD_RX_AFE1", Addr: 0x0082, MSB: 4, LSB: 4}
	PD_RX_AFE2   = Param{Name: "PD_RX_AFE2", Addr: 0x0082, MSB: 3, LSB: 3}
	PD_TX_AFE1   = Param{Name: "PD_TX_AFE1", Addr: 0x0082, MSB: 2, LSB: 2}
	PD_TX_AFE2   = Param{Name: "PD_TX_AFE2", Addr: 0x0082, MSB: 1, LSB: 1}

	RP_CALIB_BIAS = Param{Name: "RP_CALIB_BIAS", Addr: 0x0084, MSB: 10, LSB: 6}

	PD_XBUF_RX  = Param{Name: "PD_XBUF_RX", Addr: 0x0085, MSB: 2, LSB: 2}
	PD_XBUF_TX  = Param{Name: "PD_XBUF_TX", Addr: 0x0085, MSB: 1, LSB: 1}
	EN_G_XBUF   = Param{Name: "EN_G_XBUF", Addr: 0x0085, MSB: 0, LSB: 0}
	PD_XBUF_ALL = Param{Name: "PD_XBUF_ALL", Addr: 0x0085, MSB: 2, LSB: 0}

	PD_VCO_CGEN = Param{Name: "PD_VCO_CGEN", Addr: 0x0086, MSB: 2, LSB: 2}
)

// Transmit front-end (TRF)
var (
	EN_NEXTTX_TRF      = Param{Name: "EN_NEXTTX_TRF", Addr: 0x0100, MSB: 14, LSB: 14}
	EN_G_TRF           = Param{Name: "EN_G_TRF", Addr: 0x0100, MSB: 0, LSB: 0}
	L_LOOPB_TXPAD_TRF  = Param{Name: "L_LOOPB_TXPAD_TRF", Addr: 0x0101, MSB: 12, LSB: 11}
	EN_LOOPB_TXPAD_TRF = Param{Name: "EN_LOOPB_TXPAD_TRF", Addr: 0x0101, MSB: 0, LSB: 0}
	SEL_BAND1_TRF      = Param{Name: "SEL_BAND1_TRF", Addr: 0x0103, MSB: 11, LSB: 11}
	SEL_BAND2_TRF      = Param{Name: "SEL_BAND2_TRF", Addr: 0x0103, MSB: 10, LSB: 10}
)

// Transmit baseband (TBB)
var (
	LOOPB_TBB           = Param{Name: "LOOPB_TBB", Addr: 0x0105, MSB: 14, LSB: 12}
	PD_LPFH_TBB         = Param{Name: "PD_LPFH_TBB", Addr: 0x0105, MSB: 4, LSB: 4}
	PD_LPFIAMP_TBB      = Param{Name: "PD_LPFIAMP_TBB", Addr: 0x0105, MSB: 3, LSB: 3}
	PD_LPFLAD_TBB       = Param{Name: "PD_LPFLAD_TBB", Addr: 0x0105, MSB: 2, LSB: 2}
	PD_LPFS5_TBB        = Param{Name: "PD_LPFS5_TBB", Addr: 0x0105, MSB: 1, LSB: 1}
	EN_G_TBB            = Param{Name: "EN_G_TBB", Addr: 0x0105, MSB: 0, LSB: 0}
	PD_ALL_TBB          = Param{Name: "PD_ALL_TBB", Addr: 0x0105, MSB: 4, LSB: 0}
	CG_IAMP_TBB         = Param{Name: "CG_IAMP_TBB", Addr: 0x0108, MSB: 15, LSB: 10}
	ICT_IAMP_FRP_TBB    = Param{Name: "ICT_IAMP_FRP_TBB", Addr: 0x0108, MSB: 9, LSB: 5}
	ICT_IAMP_GG_FRP_TBB = Param{Name: "ICT_IAMP_GG_FRP_TBB", Addr: 0x0108, MSB: 4, LSB: 0}
	RCAL_LPFH_TBB       = Param{Name: "RCAL_LPFH_TBB", Addr: 0x0109, MSB: 15, LSB: 8}
	RCAL_LPFLAD_TBB     = Param{Name: "RCAL_LPFLAD_TBB", Addr: 0x0109, MSB: 7, LSB: 0}
	TSTIN_TBB           = Param{Name: "TSTIN_TBB", Addr: 0x010A, MSB: 15, LSB: 14}
	BYPLADDER_TBB       = Param{Name: "BYPLADDER_TBB", Addr: 0x010A, MSB: 13, LSB: 13}
	CCAL_LPFLAD_TBB     = Param{Name: "CCAL_LPFLAD_TBB", Addr: 0x010A, MSB: 12, LSB: 8}
	RCAL_LPFS5_TBB      = Param{Name: "RCAL_LPFS5_TBB", Addr: 0x010A, MSB: 7, LSB: 0}
)

// Receive front-end (RFE)
var (
	PD_LNA_RFE          = Param{Name: "PD_LNA_RFE", Addr: 0x010C, MSB: 7, LSB: 7}
	PD_RLOOPB_1_RFE     = Param{Name: "PD_RLOOPB_1_RFE", Addr: 0x010C, MSB: 6, LSB: 6}
	PD_RLOOPB_2_RFE     = Param{Name: "PD_RLOOPB_2_RFE", Addr: 0x010C, MSB: 5, LSB: 5}
	PD_MXLOBUF_RFE      = Param{Name: "PD_MXLOBUF_RFE", Addr: 0x010C, MSB: 4, LSB: 4}
	PD_QGEN_RFE         = Param{Name: "PD_QGEN_RFE", Addr: 0x010C, MSB: 3, LSB: 3}
	PD_TIA_RFE          = Param{Name: "PD_TIA_RFE", Addr: 0x010C, MSB: 1, LSB: 1}
	EN_G_RFE            = Param{Name: "EN_G_RFE", Addr: 0x010C, MSB: 0, LSB: 0}
	PD_MXLOBUF_QGEN_RFE = Param{Name: "PD_MXLOBUF_QGEN_RFE", Addr: 0x010C, MSB: 4, LSB: 3}
	PD_TIA_EN_G_RFE     = Param{Name: "PD_TIA_EN_G_RFE", Addr: 0x010C, MSB: 1, LSB: 0}
	SEL_PATH_RFE        = Param{Name: "SEL_PATH_RFE", Addr: 0x010D, MSB: 8, LSB: 7}
	EN_DCOFF_RXFE_RFE   = Param{Name: "EN_DCOFF_RXFE_RFE", Addr: 0x010D, MSB: 6, LSB: 6}
	EN_INSHSW_LB1_RFE   = Param{Name: "EN_INSHSW_LB1_RFE", Addr: 0x010D, MSB: 4, LSB: 4}
	EN_INSHSW_LB2_RFE   = Param{Name: "EN_INSHSW_LB2_RFE", Addr: 0x010D, MSB: 3, LSB: 3}
	EN_NEXTRX_RFE       = Param{Name: "EN_NEXTRX_RFE", Addr: 0x010D, MSB: 0, LSB: 0}
	DCOFFI_RFE          = Param{Name: "DCOFFI_RFE", Addr: 0x010E, MSB: 13, LSB: 7, Enc: SignMagnitude}
	DCOFFQ_RFE          = Param{Name: "DCOFFQ_RFE", Addr: 0x010E, MSB: 6, LSB: 0, Enc: SignMagnitude}
	ICT_TIAMAIN_RFE     = Param{Name: "ICT_TIAMAIN_RFE", Addr: 0x010F, MSB: 9, LSB: 5}
	ICT_TIAOUT_RFE      = Param{Name: "ICT_TIAOUT_RFE", Addr: 0x010F, MSB: 4, LSB: 0}
	ICT_LODC_RFE        = Param{Name: "ICT_LODC_RFE", Addr: 0x0110, MSB: 4, LSB: 0}
	CCOMP_TIA_RFE       = Param{Name: "CCOMP_TIA_RFE", Addr: 0x0112, MSB: 15, LSB: 12}
	CFB_TIA_RFE         = Param{Name: "CFB_TIA_RFE", Addr: 0x0112, MSB: 11, LSB: 0}
	G_RXLOOPB_RFE       = Param{Name: "G_RXLOOPB_RFE", Addr: 0x0113, MSB: 5, LSB: 2}
	G_TIA_RFE           = Param{Name: "G_TIA_RFE", Addr: 0x0113, MSB: 1, LSB: 0}
	RCOMP_TIA_RFE       = Param{Name: "RCOMP_TIA_RFE", Addr: 0x0114, MSB: 8, LSB: 5}
	RFB_TIA_RFE         = Param{Name: "RFB_TIA_RFE", Addr: 0x0114, MSB: 4, LSB: 0}
)

// Receive baseband (RBB)
var (
	EN_LB_RBB         = Param{Name: "EN_LB_RBB", Addr: 0x0115, MSB: 15, LSB: 14}
	PD_LPFH_RBB       = Param{Name: "PD_LPFH_RBB", Addr: 0x0115, MSB: 3, LSB: 3}
	PD_LPFL_RBB       = Param{Name: "PD_LPFL_RBB", Addr: 0x0115, MSB: 2, LSB: 2}
	PD_ALL_RBB        = Param{Name: "PD_ALL_RBB", Addr: 0x0115, MSB: 3, LSB: 0}
	R_CTL_LPF_RBB     = Param{Name: "R_CTL_LPF_RBB", Addr: 0x0116, MSB: 15, LSB: 11}
	RCC_CTL_LPFH_RBB  = Param{Name: "RCC_CTL_LPFH_RBB", Addr: 0x0116, MSB: 10, LSB: 8}
	C_CTL_LPFH_RBB    = Param{Name: "C_CTL_LPFH_RBB", Addr: 0x0116, MSB: 7, LSB: 0}
	RCC_CTL_LPFL_RBB  = Param{Name: "RCC_CTL_LPFL_RBB", Addr: 0x0117, MSB: 13, LSB: 11}
	C_CTL_LPFL_RBB    = Param{Name: "C_CTL_LPFL_RBB", Addr: 0x0117, MSB: 10, LSB: 0}
	INPUT_CTL_PGA_RBB = Param{Name: "INPUT_CTL_PGA_RBB", Addr: 0x0118, MSB: 15, LSB: 13}
	OSW_PGA_RBB       = Param{Name: "OSW_PGA_RBB", Addr: 0x0119, MSB: 15, LSB: 15}
	ICT_PGA_OUT_RBB   = Param{Name: "ICT_PGA_OUT_RBB", Addr: 0x0119, MSB: 14, LSB: 10}
	ICT_PGA_IN_RBB    = Param{Name: "ICT_PGA_IN_RBB", Addr: 0x0119, MSB: 9, LSB: 5}
	G_PGA_RBB         = Param{Name: "G_PGA_RBB", Addr: 0x0119, MSB: 4, LSB: 0}
	C_CTL_PGA_RBB     = Param{Name: "C_CTL_PGA_RBB", Addr: 0x011A, MSB: 6, LSB: 0}
)

// Synthesizers (SXR in channel A bank, SXT in channel B bank)
var (
	PD_LOCH_T2RBUF = Param{Name: "PD_LOCH_T2RBUF", Addr: 0x011C, MSB: 6, LSB: 6}
	PD_VCO         = Param{Name: "PD_VCO", Addr: 0x011C, MSB: 1, LSB: 1}
	ICT_VCO        = Param{Name: "ICT_VCO", Addr: 0x0121, MSB: 10, LSB: 3}
)

// Transmit TSP
var (
	TSGFCW_TXTSP       = Param{Name: "TSGFCW_TXTSP", Addr: 0x0200, MSB: 8, LSB: 7}
	TSGDCLDQ_TXTSP     = Param{Name: "TSGDCLDQ_TXTSP", Addr: 0x0200, MSB: 6, LSB: 6}
	TSGDCLDI_TXTSP     = Param{Name: "TSGDCLDI_TXTSP", Addr: 0x0200, MSB: 5, LSB: 5}
	TSGMODE_TXTSP      = Param{Name: "TSGMODE_TXTSP", Addr: 0x0200, MSB: 3, LSB: 3}
	INSEL_TXTSP        = Param{Name: "INSEL_TXTSP", Addr: 0x0200, MSB: 2, LSB: 2}
	GCORRQ_TXTSP       = Param{Name: "GCORRQ_TXTSP", Addr: 0x0201, MSB: 10, LSB: 0}
	GCORRI_TXTSP       = Param{Name: "GCORRI_TXTSP", Addr: 0x0202, MSB: 10, LSB: 0}
	IQCORR_TXTSP       = Param{Name: "IQCORR_TXTSP", Addr: 0x0203, MSB: 11, LSB: 0, Signed: true}
	DCCORRI_TXTSP      = Param{Name: "DCCORRI_TXTSP", Addr: 0x0204, MSB: 15, LSB: 8, Signed: true}
	DCCORRQ_TXTSP      = Param{Name: "DCCORRQ_TXTSP", Addr: 0x0204, MSB: 7, LSB: 0, Signed: true}
	GFIR1_L_TXTSP      = Param{Name: "GFIR1_L_TXTSP", Addr: 0x0205, MSB: 10, LSB: 8}
	GFIR1_N_TXTSP      = Param{Name: "GFIR1_N_TXTSP", Addr: 0x0205, MSB: 7, LSB: 0}
	GFIR2_L_TXTSP      = Param{Name: "GFIR2_L_TXTSP", Addr: 0x0206, MSB: 10, LSB: 8}
	GFIR2_N_TXTSP      = Param{Name: "GFIR2_N_TXTSP", Addr: 0x0206, MSB: 7, LSB: 0}
	GFIR3_L_TXTSP      = Param{Name: "GFIR3_L_TXTSP", Addr: 0x0207, MSB: 10, LSB: 8}
	GFIR3_N_TXTSP      = Param{Name: "GFIR3_N_TXTSP", Addr: 0x0207, MSB: 7, LSB: 0}
	CMIX_GAIN_TXTSP    = Param{Name: "CMIX_GAIN_TXTSP", Addr: 0x0208, MSB: 15, LSB: 14}
	CMIX_SC_TXTSP      = Param{Name: "CMIX_SC_TXTSP", Addr: 0x0208, MSB: 13, LSB: 13}
	CMIX_BYP_TXTSP     = Param{Name: "CMIX_BYP_TXTSP", Addr: 0x0208, MSB: 8, LSB: 8}
	GFIR3_BYP_TXTSP    = Param{Name: "GFIR3_BYP_TXTSP", Addr: 0x0208, MSB: 6, LSB: 6}
	GFIR2_BYP_TXTSP    = Param{Name: "GFIR2_BYP_TXTSP", Addr: 0x0208, MSB: 5, LSB: 5}
	GFIR1_BYP_TXTSP    = Param{Name: "GFIR1_BYP_TXTSP", Addr: 0x0208, MSB: 4, LSB: 4}
	GFIR_BYP_ALL_TXTSP = Param{Name: "GFIR_BYP_ALL_TXTSP", Addr: 0x0208, MSB: 6, LSB: 4}
	DC_BYP_TXTSP       = Param{Name: "DC_BYP_TXTSP", Addr: 0x0208, MSB: 3, LSB: 3}
	GC_BYP_TXTSP       = Param{Name: "GC_BYP_TXTSP", Addr: 0x0208, MSB: 1, LSB: 1}
	PH_BYP_TXTSP       = Param{Name: "PH_BYP_TXTSP", Addr: 0x0208, MSB: 0, LSB: 0}
	GC_PH_BYP_TXTSP    = Param{Name: "GC_PH_BYP_TXTSP", Addr: 0x0208, MSB: 1, LSB: 0}
	DC_REG_TXTSP       = Param{Name: "DC_REG_TXTSP", Addr: 0x020C, MSB: 15, LSB: 0}
)

// Receive TSP
var (
	CAPTURE            = Param{Name: "CAPTURE", Addr: 0x0400, MSB: 15, LSB: 15}
	CAPSEL             = Param{Name: "CAPSEL", Addr: 0x0400, MSB: 14, LSB: 13}
	TSGDCLDQ_RXTSP     = Param{Name: "TSGDCLDQ_RXTSP", Addr: 0x0400, MSB: 6, LSB: 6}
	TSGDCLDI_RXTSP     = Param{Name: "TSGDCLDI_RXTSP", Addr: 0x0400, MSB: 5, LSB: 5}
	GCORRQ_RXTSP       = Param{Name: "GCORRQ_RXTSP", Addr: 0x0401, MSB: 10, LSB: 0}
	GCORRI_RXTSP       = Param{Name: "GCORRI_RXTSP", Addr: 0x0402, MSB: 10, LSB: 0}
	HBD_OVR_RXTSP      = Param{Name: "HBD_OVR_RXTSP", Addr: 0x0403, MSB: 14, LSB: 12}
	IQCORR_RXTSP       = Param{Name: "IQCORR_RXTSP", Addr: 0x0403, MSB: 11, LSB: 0, Signed: true}
	GFIR3_L_RXTSP      = Param{Name: "GFIR3_L_RXTSP", Addr: 0x0407, MSB: 10, LSB: 8}
	GFIR3_N_RXTSP      = Param{Name: "GFIR3_N_RXTSP", Addr: 0x0407, MSB: 7, LSB: 0}
	AGC_MODE_RXTSP     = Param{Name: "AGC_MODE_RXTSP", Addr: 0x040A, MSB: 13, LSB: 12}
	AGC_AVG_RXTSP      = Param{Name: "AGC_AVG_RXTSP", Addr: 0x040A, MSB: 2, LSB: 0}
	DC_REG_RXTSP       = Param{Name: "DC_REG_RXTSP", Addr: 0x040B, MSB: 15, LSB: 0}
	CMIX_GAIN_RXTSP    = Param{Name: "CMIX_GAIN_RXTSP", Addr: 0x040C, MSB: 15, LSB: 14}
	CMIX_SC_RXTSP      = Param{Name: "CMIX_SC_RXTSP", Addr: 0x040C, MSB: 13, LSB: 13}
	CMIX_BYP_RXTSP     = Param{Name: "CMIX_BYP_RXTSP", Addr: 0x040C, MSB: 7, LSB: 7}
	AGC_BYP_RXTSP      = Param{Name: "AGC_BYP_RXTSP", Addr: 0x040C, MSB: 6, LSB: 6}
	GFIR3_BYP_RXTSP    = Param{Name: "GFIR3_BYP_RXTSP", Addr: 0x040C, MSB: 5, LSB: 5}
	GFIR2_BYP_RXTSP    = Param{Name: "GFIR2_BYP_RXTSP", Addr: 0x040C, MSB: 4, LSB: 4}
	GFIR1_BYP_RXTSP    = Param{Name: "GFIR1_BYP_RXTSP", Addr: 0x040C, MSB: 3, LSB: 3}
	GFIR_BYP_ALL_RXTSP = Param{Name: "GFIR_BYP_ALL_RXTSP", Addr: 0x040C, MSB: 5, LSB: 3}
	AGC_GFIR_BYP_RXTSP = Param{Name: "AGC_GFIR_BYP_RXTSP", Addr: 0x040C, MSB: 6, LSB: 3}
	DC_BYP_RXTSP       = Param{Name: "DC_BYP_RXTSP", Addr: 0x040C, MSB: 2, LSB: 2}
	GC_BYP_RXTSP       = Param{Name: "GC_BYP_RXTSP", Addr: 0x040C, MSB: 1, LSB: 1}
	PH_BYP_RXTSP       = Param{Name: "PH_BYP_RXTSP", Addr: 0x040C, MSB: 0, LSB: 0}
	DC_GC_PH_BYP_RXTSP = Param{Name: "DC_GC_PH_BYP_RXTSP", Addr: 0x040C, MSB: 2, LSB: 0}
	RSSI_LSB_RXTSP     = Param{Name: "RSSI_LSB_RXTSP", Addr: RegRSSILow, MSB: 1, LSB: 0}
	RSSI_MSB_RXTSP     = Param{Name: "RSSI_MSB_RXTSP", Addr: RegRSSIHigh, MSB: 15, LSB: 0}
)

var paramIndex = func() map[string]Param {
	index := make(map[string]Param)
	for _, p := range []Param{
		MAC, ISEL_DAC_AFE, PD_RX_AFE1, PD_RX_AFE2, PD_TX_AFE1, PD_TX_AFE2,
		RP_CALIB_BIAS, PD_XBUF_RX, PD_XBUF_TX, EN_G_XBUF, PD_XBUF_ALL, PD_VCO_CGEN,
		EN_NEXTTX_TRF, EN_G_TRF, L_LOOPB_TXPAD_TRF, EN_LOOPB_TXPAD_TRF, SEL_BAND1_TRF, SEL_BAND2_TRF,
		LOOPB_TBB, PD_LPFH_TBB, PD_LPFIAMP_TBB, PD_LPFLAD_TBB, PD_LPFS5_TBB, EN_G_TBB, PD_ALL_TBB,
		CG_IAMP_TBB, ICT_IAMP_FRP_TBB, ICT_IAMP_GG_FRP_TBB, RCAL_LPFH_TBB, RCAL_LPFLAD_TBB,
		TSTIN_TBB, BYPLADDER_TBB, CCAL_LPFLAD_TBB, RCAL_LPFS5_TBB,
		PD_LNA_RFE, PD_RLOOPB_1_RFE, PD_RLOOPB_2_RFE, PD_MXLOBUF_RFE, PD_QGEN_RFE, PD_TIA_RFE, EN_G_RFE,
		PD_MXLOBUF_QGEN_RFE, PD_TIA_EN_G_RFE, SEL_PATH_RFE, EN_DCOFF_RXFE_RFE, EN_INSHSW_LB1_RFE,
		EN_INSHSW_LB2_RFE, EN_NEXTRX_RFE, DCOFFI_RFE, DCOFFQ_RFE, ICT_TIAMAIN_RFE, ICT_TIAOUT_RFE,
		ICT_LODC_RFE, CCOMP_TIA_RFE, CFB_TIA_RFE, G_RXLOOPB_RFE, G_TIA_RFE, RCOMP_TIA_RFE, RFB_TIA_RFE,
		EN_LB_RBB, PD_LPFH_RBB, PD_LPFL_RBB, PD_ALL_RBB, R_CTL_LPF_RBB, RCC_CTL_LPFH_RBB, C_CTL_LPFH_RBB,
		RCC_CTL_LPFL_RBB, C_CTL_LPFL_RBB, INPUT_CTL_PGA_RBB, OSW_PGA_RBB, ICT_PGA_OUT_RBB, ICT_PGA_IN_RBB,
		G_PGA_RBB, C_CTL_PGA_RBB,
		PD_LOCH_T2RBUF, PD_VCO, ICT_VCO,
		TSGFCW_TXTSP, TSGDCLDQ_TXTSP, TSGDCLDI_TXTSP, TSGMODE_TXTSP, INSEL_TXTSP, GCORRQ_TXTSP, GCORRI_TXTSP,
		IQCORR_TXTSP, DCCORRI_TXTSP, DCCORRQ_TXTSP, GFIR1_L_TXTSP, GFIR1_N_TXTSP, GFIR2_L_TXTSP,
		GFIR2_N_TXTSP, GFIR3_L_TXTSP, GFIR3_N_TXTSP, CMIX_GAIN_TXTSP, CMIX_SC_TXTSP, CMIX_BYP_TXTSP,
		GFIR3_BYP_TXTSP, GFIR2_BYP_TXTSP, GFIR1_BYP_TXTSP, GFIR_BYP_ALL_TXTSP, DC_BYP_TXTSP, GC_BYP_TXTSP,
		PH_BYP_TXTSP, GC_PH_BYP_TXTSP, DC_REG_TXTSP,
		CAPTURE, CAPSEL, TSGDCLDQ_RXTSP, TSGDCLDI_RXTSP, GCORRQ_RXTSP, GCORRI_RXTSP, HBD_OVR_RXTSP,
		IQCORR_RXTSP, GFIR3_L_RXTSP, GFIR3_N_RXTSP, AGC_MODE_RXTSP, AGC_AVG_RXTSP, DC_REG_RXTSP,
		CMIX_GAIN_RXTSP, CMIX_SC_RXTSP, CMIX_BYP_RXTSP, AGC_BYP_RXTSP, GFIR3_BYP_RXTSP, GFIR2_BYP_RXTSP,
		GFIR1_BYP_RXTSP, GFIR_BYP_ALL_RXTSP, AGC_GFIR_BYP_RXTSP, DC_BYP_RXTSP, GC_BYP_RXTSP, PH_BYP_RXTSP, DC_GC_PH_BYP_RXTSP, RSSI_LSB_RXTSP, RSSI_MSB_RXTSP,
	} {
		index[p.Name] = p
	}
	return index
}()

// LookupParam finds a named field
func LookupParam(name string) (Param, bool) {
	p, ok := paramIndex[name]
	return p, ok
}

// Params returns every named field ordered by address and bit position
func Params() []Param {
	list := make([]Param, 0, len(paramIndex))
	for _, p := range paramIndex {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Addr != list[j].Addr {
			return list[i].Addr < list[j].Addr
		}
		if list[i].MSB != list[j].MSB {
			return list[i].MSB > list[j].MSB
		}
		return list[i].LSB > list[j].LSB
	})
	return list
}
