// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

const (
	educationSchema    = "World_Bank_Education_Statistics_Database"
	developmentSchema  = "World_Bank_Development_Statistics_Database"
	demographicsSchema = "World_Bank_Demographic_Statistics_Database"
	economicsSchema    = "World_Bank_Economic_Statistics_Database"
)

var entries = []Entry{
	{
		Name:     "education",
		Domain:   Education,
		Lookback: 40,
		Schema:   educationSchema,
		Table:    "educational_attainment_global_pct_by_sex",
		Description: "Global educational attainment metrics for population 25+ " +
			"sourced from World Bank API",
		Indicators: []Indicator{
			{"SE.TER.CUAT.MS.ZS", "Master_Total_Pct"},
			{"SE.TER.CUAT.MS.MA.ZS", "Master_Male_Pct"},
			{"SE.TER.CUAT.ST.MA.ZS", "Short_Cycle_Male_Pct"},
			{"SE.TER.CUAT.DO.FE.ZS", "Doctoral_Female_Pct"},
			{"SE.TER.CUAT.BA.FE.ZS", "Bachelor_Female_Pct"},
			{"SE.TER.CUAT.ST.FE.ZS", "Short_Cycle_Female_Pct"},
			{"SE.TER.CUAT.DO.MA.ZS", "Doctoral_Male_Pct"},
			{"SE.TER.CUAT.BA.MA.ZS", "Bachelor_Male_Pct"},
		},
	},
	{
		Name:     "electricity",
		Domain:   Development,
		Lookback: 40,
		Schema:   developmentSchema,
		Table:    "electricity_access_and_consumption",
		Description: "Global electricity access and consumption metrics " +
			"sourced from World Bank API",
		Indicators: []Indicator{
			{"EG.USE.ELEC.KH.PC", "KWh_Per_Capita"},
			{"EG.ELC.ACCS.ZS", "Access_Total_Pct"},
			{"EG.ELC.ACCS.UR.ZS", "Access_Urban_Pct"},
			{"EG.ELC.ACCS.RU.ZS", "Access_Rural_Pct"},
		},
	},
	{
		Name:     "demographics",
		Domain:   Demographics,
		Lookback: 100,
		Schema:   demographicsSchema,
		Table:    "population_and_migration_global",
		Description: "Global population counts and migration flows " +
			"sourced from World Bank API",
		Indicators: []Indicator{
			{"SP.POP.TOTL", "Pop_Total_Count"},
			{"SP.POP.TOTL.MA.IN", "Pop_Male_Count"},
			{"SP.POP.TOTL.FE.IN", "Pop_Female_Count"},
			{"SM.POP.TOTL", "Migrant_Stock_Total_Count"},
			{"SM.MET.NETM", "Net_Migration_Flow"},
		},
	},
	{
		Name:        "fertility",
		Domain:      Demographics,
		Lookback:    100,
		Schema:      demographicsSchema,
		Table:       "fertility_rates_global",
		Description: "Total fertility rate (births per woman) sourced from World Bank API",
		Indicators: []Indicator{
			{"SP.DYN.TFRT.IN", "Fertility_Rate_Births_Per_Woman"},
		},
	},
	{
		Name:     "economics",
		Domain:   Economics,
		Lookback: 100,
		Schema:   economicsSchema,
		Table:    "country_economic_indicators",
		Description: "Economic indicators (GDP and inflation indicators) " +
			"sourced from World Bank API",
		Indicators: []Indicator{
			{"NY.GDP.MKTP.CD", "GDP_USD"},
			{"NY.GDP.PCAP.CD", "GDP_Per_Capita"},
			{"NY.GDP.MKTP.KD.ZG", "GDP_Growth_Annual_%"},
			{"FP.CPI.TOTL.ZG", "Inflation_CPI_%"},
			{"NY.GDP.MKTP.PP.CD", "GDP_PPP"},
		},
	},
	{
		Name:     "employment",
		Domain:   Employment,
		Lookback: 100,
		Schema:   economicsSchema,
		Table:    "unemployment_rates_global",
		Description: "Unemployment rates (Total, Male, Female), (Ages 15-24, " +
			"National Estimates) sourced from World Bank API via national estimates",
		Indicators: []Indicator{
			{"SL.UEM.TOTL.NE.ZS", "Unemployment_Total_Pct"},
			{"SL.UEM.TOTL.MA.NE.ZS", "Unemployment_Male_Pct"},
			{"SL.UEM.TOTL.FE.NE.ZS", "Unemployment_Female_Pct"},
			{"SL.UEM.1524.NE.ZS", "Youth_Unemployment_Total_Pct"},
			{"SL.UEM.1524.MA.NE.ZS", "Youth_Unemployment_Male_Pct"},
			{"SL.UEM.1524.FE.NE.ZS", "Youth_Unemployment_Female_Pct"},
		},
	},
}
